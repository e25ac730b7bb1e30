// Package ingest copies quotes from the source into the quote store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/graffic/quotebot/internal/lock"
	"github.com/graffic/quotebot/internal/metrics"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/source"
)

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// defaultProbe bounds how many ids past the newest stored quote a sweep
// asks the source for.
const defaultProbe = 20

// Outcome of updating a single quote
type Outcome int

const (
	NotOnSource Outcome = iota
	Created
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case NotOnSource:
		return "not_on_source"
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Service runs ingestion against one store
type Service struct {
	store   *quotes.Store
	fetcher source.Fetcher
	locker  lock.Locker
	logger  *slog.Logger
	probe   int
}

// NewService creates an ingestion service
func NewService(store *quotes.Store, fetcher source.Fetcher, locker lock.Locker, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		locker:  locker,
		logger:  logger,
		probe:   defaultProbe,
	}
}

// UpdateQuote fetches one quote and stores or refreshes it. Comics are
// always merged; only a text change counts as an update.
func (s *Service) UpdateQuote(ctx context.Context, id int64) (Outcome, error) {
	ext, err := s.fetcher.FetchByID(ctx, id)
	if err != nil {
		return NotOnSource, fmt.Errorf("failed to fetch quote %d: %w", id, err)
	}
	if ext == nil {
		metrics.IngestedQuotes.WithLabelValues(NotOnSource.String()).Inc()
		return NotOnSource, nil
	}

	outcome, err := s.save(ctx, *ext)
	if err != nil {
		return outcome, err
	}
	metrics.IngestedQuotes.WithLabelValues(outcome.String()).Inc()
	return outcome, nil
}

func (s *Service) save(ctx context.Context, ext quotes.External) (Outcome, error) {
	_, created, err := s.store.GetOrCreate(ctx, ext)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to store quote %d: %w", ext.ID, err)
	}
	if created {
		return Created, nil
	}
	changed, err := s.store.UpdateText(ctx, ext.ID, ext.Text)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to update quote %d: %w", ext.ID, err)
	}
	if changed {
		return Updated, nil
	}
	return Unchanged, nil
}

// Sweep stores a random batch from the source, then probes the ids after
// the newest stored quote until the source runs out. It returns how many
// quotes were created.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSweepInProgress
	}
	defer release()

	added := 0
	batch, err := s.fetcher.FetchBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch batch: %w", err)
	}
	for _, ext := range batch {
		outcome, err := s.save(ctx, ext)
		if err != nil {
			return added, err
		}
		metrics.IngestedQuotes.WithLabelValues(outcome.String()).Inc()
		if outcome == Created {
			added++
		}
	}

	maxID, err := s.store.MaxID(ctx)
	if err != nil {
		return added, err
	}
	for id := maxID + 1; id <= maxID+int64(s.probe); id++ {
		outcome, err := s.UpdateQuote(ctx, id)
		if err != nil {
			return added, err
		}
		if outcome == NotOnSource {
			break
		}
		if outcome == Created {
			added++
		}
	}

	s.logger.Info("Sweep finished", "added", added, "batch", len(batch))
	return added, nil
}
