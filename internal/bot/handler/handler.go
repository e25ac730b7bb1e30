// Package handler defines the request passed through the bot's middleware
// chain and the function types the chain is built from.
package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot/models"
)

// Command names for updates that are not slash commands.
const (
	CommandText     = "text"
	CommandCallback = "callback"
)

// Request is one incoming update, already parsed.
type Request struct {
	Update *models.Update

	// Command is the slash command without the bot suffix ("/quote"),
	// CommandText for plain messages or CommandCallback for button presses.
	Command string
	// Args is the text after the command, trimmed.
	Args string

	Text       string
	Callback   string
	CallbackID string

	ChatID    int64
	MessageID int
	User      *models.User
	Chat      *models.Chat

	// TraceID is set by the logging middleware.
	TraceID string
}

// UserID returns the sender id, or zero when the update has no sender.
func (r *Request) UserID() int64 {
	if r.User == nil {
		return 0
	}
	return r.User.ID
}

// Result reports what a handler delivered
type Result struct {
	// Quotes are the ids sent to the user, in delivery order.
	Quotes []int64
}

// Func handles a request
type Func func(ctx context.Context, req *Request) (*Result, error)

// Middleware wraps a Func
type Middleware func(Func) Func

// Chain applies middlewares so that the first one is the outermost.
func Chain(h Func, middlewares ...Middleware) Func {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Parse builds a Request from an update. It returns nil for updates the bot
// does not handle.
func Parse(update *models.Update) *Request {
	if update == nil {
		return nil
	}

	switch {
	case update.Message != nil:
		msg := update.Message
		req := &Request{
			Update:    update,
			Text:      msg.Text,
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			User:      msg.From,
			Chat:      &msg.Chat,
		}
		req.Command, req.Args = splitCommand(msg.Text)
		return req

	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		req := &Request{
			Update:     update,
			Command:    CommandCallback,
			Callback:   cb.Data,
			CallbackID: cb.ID,
			User:       &cb.From,
		}
		if msg := cb.Message.Message; msg != nil {
			req.ChatID = msg.Chat.ID
			req.MessageID = msg.ID
			req.Chat = &msg.Chat
		}
		return req
	}
	return nil
}

// splitCommand extracts "/cmd" from "/cmd@botname args" and returns the
// remaining arguments. Plain text yields CommandText.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '/' {
		return CommandText, text
	}

	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

type loggerKey struct{}

// WithLogger stores a request-scoped logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger, or fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
