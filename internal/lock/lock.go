// Package lock provides the advisory lock that keeps ingestion sweeps from
// overlapping, in one process or across several sharing a Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out a non-blocking exclusive lock. When ok is false the lock
// is held elsewhere and release is nil.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// Local is an in-process Locker
type Local struct {
	mu sync.Mutex
}

// NewLocal creates an in-process lock
func NewLocal() *Local {
	return &Local{}
}

// TryLock implements Locker
func (l *Local) TryLock(_ context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}

// Only the holder of the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by a single Redis key. The key expires after
// ttl so a crashed holder cannot block sweeps forever.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis creates a Redis lock on key
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// TryLock implements Locker
func (r *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{r.key}, token).Err()
		})
	}
	return release, true, nil
}
