package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graffic/quotebot/internal/quotes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 0)
}

func TestFetchByID(t *testing.T) {
	date := time.Date(2009, 4, 1, 0, 0, 0, 0, time.UTC)
	client := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quotes/42":
			_ = json.NewEncoder(w).Encode(quotes.External{
				ID:         42,
				URL:        "https://example.org/quote/42",
				Text:       "hello",
				Date:       date,
				Rating:     7,
				ComicsURLs: []string{"https://example.org/strip/1"},
			})
		case "/quotes/43":
			_ = json.NewEncoder(w).Encode(quotes.External{ID: 44})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	q, err := client.FetchByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "hello", q.Text)
	assert.Equal(t, 7, q.Rating)
	assert.True(t, date.Equal(q.Date))
	assert.Equal(t, []string{"https://example.org/strip/1"}, q.ComicsURLs)

	missing, err := client.FetchByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = client.FetchByID(ctx, 43)
	assert.Error(t, err)
}

func TestFetchByID_ServerError(t *testing.T) {
	client := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := client.FetchByID(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchBatch(t *testing.T) {
	client := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quotes/random", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]quotes.External{{ID: 1}, {ID: 2}})
	})

	batch, err := client.FetchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(2), batch[1].ID)
}

func TestClient_RateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, 0.5)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.FetchByID(ctx, 1)
	require.NoError(t, err)

	// The second call would wait two seconds for a token.
	_, err = client.FetchByID(ctx, 2)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", 0).FetchBatch(context.Background())
	assert.Error(t, err)
}
