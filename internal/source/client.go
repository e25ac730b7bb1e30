// Package source fetches quotes from the upstream JSON mirror.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/graffic/quotebot/internal/metrics"
	"github.com/graffic/quotebot/internal/quotes"
	"golang.org/x/time/rate"
)

// Fetcher is the read side of the quote source
type Fetcher interface {
	FetchByID(ctx context.Context, id int64) (*quotes.External, error)
	FetchBatch(ctx context.Context) ([]quotes.External, error)
}

// Client talks to the mirror over HTTP, paced by a rate limiter.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a source client. A non-positive rps disables pacing.
func NewClient(baseURL string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchByID returns the quote with the given id, or nil when the source
// does not have it.
func (c *Client) FetchByID(ctx context.Context, id int64) (q *quotes.External, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSourceRequest("by_id", start, err) }()

	raw, status, err := c.get(ctx, "/quotes/"+strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}

	var out quotes.External
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid quote response: %w", err)
	}
	if out.ID != id {
		return nil, fmt.Errorf("source returned quote %d for %d", out.ID, id)
	}
	return &out, nil
}

// FetchBatch returns a batch of random quotes.
func (c *Client) FetchBatch(ctx context.Context) (batch []quotes.External, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSourceRequest("random", start, err) }()

	raw, status, err := c.get(ctx, "/quotes/random")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []quotes.External{}, nil
	}

	var out []quotes.External
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid batch response: %w", err)
	}
	return out, nil
}

// get returns the body of a 2xx or 404 response.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	if c.baseURL == "" {
		return nil, 0, fmt.Errorf("source url is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("source http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, resp.StatusCode, nil
}
