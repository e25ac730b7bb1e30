package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/graffic/quotebot/internal/bot/handler"
)

// Logging tags each request with a trace id and logs its duration.
func Logging(logger *slog.Logger) handler.Middleware {
	return func(next handler.Func) handler.Func {
		return func(ctx context.Context, req *handler.Request) (*handler.Result, error) {
			req.TraceID = uuid.NewString()
			l := logger.With("trace_id", req.TraceID)
			if req.Update != nil {
				l = l.With("update_id", req.Update.ID)
			}
			ctx = handler.WithLogger(ctx, l)

			start := time.Now()
			l.Debug("Handling request", "command", req.Command, "chat_id", req.ChatID, "user_id", req.UserID())
			res, err := next(ctx, req)
			l.Debug("Request handled", "command", req.Command, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
			return res, err
		}
	}
}
