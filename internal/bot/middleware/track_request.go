package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/metrics"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/storage"
	"github.com/graffic/quotebot/internal/users"
)

// ProfileToucher refreshes the stored user and chat
type ProfileToucher interface {
	Touch(ctx context.Context, p users.Profile) (*users.User, error)
	TouchChat(ctx context.Context, p users.ChatProfile) (*users.Chat, error)
}

// RequestRecorder appends to the request log
type RequestRecorder interface {
	Record(ctx context.Context, e requests.Entry) error
}

// TrackRequest refreshes the sender's profile, times the handler and logs
// the request: one row per delivered quote, or a single row without one.
// Transient write failures are retried for up to maxElapsed.
func TrackRequest(profiles ProfileToucher, recorder RequestRecorder, maxElapsed time.Duration, logger *slog.Logger) handler.Middleware {
	return func(next handler.Func) handler.Func {
		return func(ctx context.Context, req *handler.Request) (*handler.Result, error) {
			if err := touch(ctx, profiles, req); err != nil {
				return nil, err
			}

			start := time.Now()
			res, err := next(ctx, req)
			elapsed := time.Since(start)

			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RequestsTotal.WithLabelValues(req.Command, status).Inc()
			metrics.RequestDuration.WithLabelValues(req.Command).Observe(elapsed.Seconds())

			base := requests.Entry{
				Command:  req.Command,
				Elapsed:  elapsed,
				UserID:   req.UserID(),
				ChatID:   req.ChatID,
				Text:     req.Text,
				Callback: req.Callback,
			}

			var entries []requests.Entry
			if res != nil && len(res.Quotes) > 0 {
				metrics.QuotesDelivered.Add(float64(len(res.Quotes)))
				for _, id := range res.Quotes {
					e := base
					e.QuoteID = id
					entries = append(entries, e)
				}
			} else {
				entries = append(entries, base)
			}

			for _, e := range entries {
				if rErr := record(ctx, recorder, e, maxElapsed); rErr != nil {
					handler.Logger(ctx, logger).Error("Failed to record request", "command", e.Command, "quote_id", e.QuoteID, "error", rErr)
					err = errors.Join(err, rErr)
				}
			}
			return res, err
		}
	}
}

func touch(ctx context.Context, profiles ProfileToucher, req *handler.Request) error {
	if u := req.User; u != nil {
		if _, err := profiles.Touch(ctx, users.Profile{
			ID:           u.ID,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Username:     u.Username,
			LanguageCode: u.LanguageCode,
		}); err != nil {
			return fmt.Errorf("failed to touch user: %w", err)
		}
	}
	if c := req.Chat; c != nil {
		if _, err := profiles.TouchChat(ctx, users.ChatProfile{
			ID:        c.ID,
			Type:      string(c.Type),
			Title:     c.Title,
			Username:  c.Username,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		}); err != nil {
			return fmt.Errorf("failed to touch chat: %w", err)
		}
	}
	return nil
}

// record outlives the update's context: a delivered quote must be logged
// even when the bot is shutting down.
func record(ctx context.Context, recorder RequestRecorder, e requests.Entry, maxElapsed time.Duration) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxElapsed)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		err := recorder.Record(ctx, e)
		if err != nil && !storage.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
