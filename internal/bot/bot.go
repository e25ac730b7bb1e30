// Package bot routes parsed Telegram updates to the quote commands.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/cache"
	"github.com/graffic/quotebot/internal/errlog"
	"github.com/graffic/quotebot/internal/ingest"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/selector"
	"github.com/graffic/quotebot/internal/telegram"
	"github.com/graffic/quotebot/internal/users"
)

// Deps are the services the commands use. Ingest may be nil when
// ingestion is disabled.
type Deps struct {
	Client   telegram.Client
	Quotes   *quotes.Store
	Requests *requests.Log
	Users    *users.Store
	Selector *selector.Selector
	Cache    *cache.Service
	Errors   *errlog.Log
	Ingest   *ingest.Service
	IsAdmin  func(userID int64) bool
	Logger   *slog.Logger
}

// Bot dispatches requests to commands and callbacks
type Bot struct {
	Deps

	renderer  *quotes.Renderer
	started   time.Time
	commands  map[string]*command
	callbacks []callback
	chain     handler.Func
}

// New creates a bot with every command registered and no middleware.
func New(deps Deps) *Bot {
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(int64) bool { return false }
	}
	b := &Bot{
		Deps:     deps,
		renderer: quotes.NewRenderer(),
		started:  time.Now(),
		commands: make(map[string]*command),
	}
	b.registerCommands()
	b.chain = b.route
	return b
}

// Use wraps routing in middlewares, the first being the outermost.
func (b *Bot) Use(middlewares ...handler.Middleware) {
	b.chain = handler.Chain(b.route, middlewares...)
}

// Handle processes one update. It is the polling client's update handler.
func (b *Bot) Handle(ctx context.Context, update *models.Update) {
	req := handler.Parse(update)
	if req == nil {
		return
	}
	if _, err := b.chain(ctx, req); err != nil {
		b.Logger.Error("Unhandled request error", "command", req.Command, "error", err)
	}
}

func (b *Bot) route(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	switch req.Command {
	case handler.CommandCallback:
		return b.routeCallback(ctx, req)
	case handler.CommandText:
		if datePattern.MatchString(req.Text) {
			req.Args = strings.TrimSpace(req.Text)
			return b.onDate(ctx, req)
		}
		return b.onQuote(ctx, req)
	}

	cmd, ok := b.commands[req.Command]
	if !ok || (cmd.admin && !b.IsAdmin(req.UserID())) {
		return nil, b.reply(ctx, req, "Unknown command. See /help")
	}
	return cmd.fn(ctx, req)
}

func (b *Bot) routeCallback(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	if err := b.Client.AnswerCallback(ctx, req.CallbackID, ""); err != nil {
		b.Logger.Warn("Failed to answer callback", "error", err)
	}
	for _, cb := range b.callbacks {
		if rest, ok := strings.CutPrefix(req.Callback, cb.prefix); ok {
			req.Args = rest
			return cb.fn(ctx, req)
		}
	}
	b.Logger.Debug("Unknown callback", "data", req.Callback)
	return nil, nil
}

func (b *Bot) reply(ctx context.Context, req *handler.Request, text string) error {
	return b.send(ctx, req, text, telegram.SendOptions{ReplyTo: req.MessageID})
}

func (b *Bot) send(ctx context.Context, req *handler.Request, text string, opts telegram.SendOptions) error {
	if req.ChatID == 0 {
		return nil
	}
	_, err := b.Client.SendMessage(ctx, req.ChatID, text, opts)
	return err
}

// sendQuote delivers one quote with a comics button when it has comics.
func (b *Bot) sendQuote(ctx context.Context, req *handler.Request, q *quotes.Quote, opts telegram.SendOptions) error {
	text, err := b.renderer.RenderSimple(q)
	if err != nil {
		return err
	}
	opts.DisablePreview = true
	if len(q.Comics) > 0 {
		opts.Buttons = append([][]telegram.Button{{{Text: "Comics", Data: comicsPrefix + itoa(q.ID)}}}, opts.Buttons...)
	}
	return b.send(ctx, req, text, opts)
}
