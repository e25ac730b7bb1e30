package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/errlog"
	"github.com/graffic/quotebot/internal/telegram"
)

// ErrorText is sent to the user when a handler fails.
const ErrorText = "Something went wrong. The error has been logged."

// ErrorRecorder stores handler failures
type ErrorRecorder interface {
	Record(ctx context.Context, e errlog.Entry) error
}

// Sender sends a reply to a chat
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*models.Message, error)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// CatchErrors is the outermost layer. Handler errors and panics are
// logged, stored in the error log and answered with ErrorText. Nothing
// propagates past it.
func CatchErrors(recorder ErrorRecorder, sender Sender, logger *slog.Logger) handler.Middleware {
	return func(next handler.Func) handler.Func {
		return func(ctx context.Context, req *handler.Request) (res *handler.Result, err error) {
			defer func() {
				if v := recover(); v != nil {
					err = &panicError{value: v, stack: debug.Stack()}
				}
				if err == nil {
					return
				}
				report(ctx, req, err, recorder, sender, handler.Logger(ctx, logger))
				res, err = nil, nil
			}()
			return next(ctx, req)
		}
	}
}

func report(ctx context.Context, req *handler.Request, err error, recorder ErrorRecorder, sender Sender, logger *slog.Logger) {
	if req.TraceID != "" {
		logger = logger.With("trace_id", req.TraceID)
	}
	logger.Error("Handler failed", "command", req.Command, "chat_id", req.ChatID, "error", err)

	entry := errlog.Entry{
		Command:   req.Command,
		Kind:      fmt.Sprintf("%T", err),
		Text:      err.Error(),
		UserID:    req.UserID(),
		ChatID:    req.ChatID,
		MessageID: int64(req.MessageID),
	}
	if p, ok := err.(*panicError); ok {
		entry.Kind = "panic"
		entry.Stack = string(p.stack)
	}
	if req.Update != nil {
		if raw, mErr := json.Marshal(req.Update); mErr == nil {
			entry.Update = raw
		}
	}
	if rErr := recorder.Record(ctx, entry); rErr != nil {
		logger.Error("Failed to record error", "error", rErr)
	}

	if req.ChatID == 0 {
		return
	}
	if _, sErr := sender.SendMessage(ctx, req.ChatID, ErrorText, telegram.SendOptions{ReplyTo: req.MessageID}); sErr != nil {
		logger.Error("Failed to send error reply", "error", sErr)
	}
}
