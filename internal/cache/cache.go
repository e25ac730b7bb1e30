package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graffic/quotebot/internal/metrics"
	"github.com/graffic/quotebot/internal/quotes"
)

// Selector draws quotes a user has not received yet
type Selector interface {
	SelectUnique(ctx context.Context, userID int64, f quotes.Filter, batchSize int) ([]quotes.Quote, error)
}

// FilterSource provides a user's current filter
type FilterSource interface {
	Filters(ctx context.Context, userID int64) (quotes.Filter, error)
}

// Session is one user's prefetch buffer. Its mutex serializes every
// operation on the buffer, including a refill in progress.
type Session struct {
	mu       sync.Mutex
	buffer   []quotes.Quote
	served   map[int64]struct{} // popped, possibly not logged yet
	lastUsed time.Time
}

// Service hands out unseen quotes one at a time from per-user buffers.
type Service struct {
	selector  Selector
	filters   FilterSource
	batchSize int
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewService creates a new cache service
func NewService(selector Selector, filters FilterSource, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = quotes.DefaultBatchSize
	}
	return &Service{
		selector:  selector,
		filters:   filters,
		batchSize: batchSize,
		now:       time.Now,
		sessions:  make(map[int64]*Session),
	}
}

func (s *Service) session(userID int64, create bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok && create {
		sess = &Session{served: make(map[int64]struct{})}
		s.sessions[userID] = sess
		metrics.CacheSessions.Set(float64(len(s.sessions)))
	}
	return sess
}

// GetNext pops one quote from the user's buffer, refilling it first when
// empty. A nil quote with a nil error means the user exhausted the quotes
// under the current filter.
func (s *Service) GetNext(ctx context.Context, userID int64) (*quotes.Quote, error) {
	sess := s.session(userID, true)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = s.now()

	if len(sess.buffer) == 0 {
		if err := s.refill(ctx, userID, sess); err != nil {
			return nil, err
		}
		if len(sess.buffer) == 0 {
			metrics.CacheExhausted.Inc()
			return nil, nil
		}
	}

	last := len(sess.buffer) - 1
	q := sess.buffer[last]
	sess.buffer = sess.buffer[:last]
	sess.served[q.ID] = struct{}{}
	return &q, nil
}

func (s *Service) refill(ctx context.Context, userID int64, sess *Session) error {
	f, err := s.filters.Filters(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load filters: %w", err)
	}

	batch, err := s.selector.SelectUnique(ctx, userID, f, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to refill cache: %w", err)
	}
	metrics.CacheRefills.Inc()

	// Served quotes may not be logged yet, so the selector can still offer
	// them.
	fresh := make([]quotes.Quote, 0, len(batch))
	offered := make(map[int64]struct{}, len(batch))
	for _, q := range batch {
		offered[q.ID] = struct{}{}
		if _, ok := sess.served[q.ID]; !ok {
			fresh = append(fresh, q)
		}
	}
	sess.buffer = fresh

	// A short batch holds every unseen quote: a served id missing from it
	// has been logged and can be forgotten.
	if len(batch) < s.batchSize {
		for id := range sess.served {
			if _, ok := offered[id]; !ok {
				delete(sess.served, id)
			}
		}
	}
	return nil
}

// Invalidate drops the user's buffer. It waits for a refill in progress.
func (s *Service) Invalidate(userID int64) {
	sess := s.session(userID, false)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.buffer = nil
	sess.mu.Unlock()
}

// Size returns how many quotes are buffered for the user.
func (s *Service) Size(userID int64) int {
	sess := s.session(userID, false)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.buffer)
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Clean removes sessions idle for longer than keep and returns how many
// were removed. Busy sessions are skipped.
func (s *Service) Clean(keep time.Duration) int {
	cutoff := s.now().Add(-keep)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if !sess.lastUsed.After(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
		sess.mu.Unlock()
	}
	metrics.CacheSessions.Set(float64(len(s.sessions)))
	return removed
}
