// Package jobs runs the periodic maintenance work: ingestion sweeps and
// database backups.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/graffic/quotebot/internal/ingest"
	"github.com/graffic/quotebot/internal/storage"
	"github.com/robfig/cron/v3"
)

// Func is one run of a job
type Func func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	fn       Func
}

// Scheduler runs jobs on cron schedules in UTC. A job still running when
// its next tick comes is skipped for that tick.
type Scheduler struct {
	logger *slog.Logger
	jobs   []job
}

// New creates an empty scheduler
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a job. The schedule is a standard five-field cron expression
// or a descriptor such as "@every 1h".
func (s *Scheduler) Add(name, expr string, fn Func) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", expr, name, err)
	}
	s.jobs = append(s.jobs, job{name: name, schedule: schedule, fn: fn})
	return nil
}

// Start runs the jobs until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	for _, j := range s.jobs {
		c.Schedule(j.schedule, cron.FuncJob(func() {
			s.run(ctx, j)
		}))
	}

	c.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context, j job) {
	start := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("Job failed", "job", j.name, "error", err)
		return
	}
	s.logger.Debug("Job finished", "job", j.name, "elapsed_ms", time.Since(start).Milliseconds())
}

// Sweep returns a job running an ingestion sweep, retried with exponential
// backoff for up to maxElapsed. A sweep already in progress elsewhere is
// not an error.
func Sweep(svc *ingest.Service, maxElapsed time.Duration, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = maxElapsed

		return backoff.Retry(func() error {
			added, err := svc.Sweep(ctx)
			if errors.Is(err, ingest.ErrSweepInProgress) {
				logger.Info("Sweep skipped, another one is running")
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				logger.Warn("Sweep failed, retrying", "error", err)
				return err
			}
			logger.Info("Sweep done", "added", added)
			return nil
		}, backoff.WithContext(b, ctx))
	}
}

// Backup returns a job writing the dated database snapshot.
func Backup(b *storage.Backup, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		path, written, err := b.Run(ctx)
		if err != nil {
			return err
		}
		if written {
			logger.Info("Backup written", "path", path)
		}
		return nil
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
