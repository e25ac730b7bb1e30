package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestLocal_TryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()

	release, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestLocal_OneWinner(t *testing.T) {
	l := NewLocal()
	var winners atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := l.TryLock(context.Background()); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_TryLock(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a := NewRedis(client, "quotebot:test", time.Minute)
	b := NewRedis(client, "quotebot:test", time.Minute)

	release, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()

	release, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	l := NewRedis(client, "quotebot:expired", time.Minute)
	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by another holder.
	require.NoError(t, client.Set(ctx, "quotebot:expired", "someone-else", time.Minute).Err())
	release()

	val, err := client.Get(ctx, "quotebot:expired").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
