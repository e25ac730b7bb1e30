package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/ingest"
	"github.com/graffic/quotebot/internal/telegram"
)

func (b *Bot) onAdminStats(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userCount, err := b.Users.Count(ctx)
	if err != nil {
		return nil, err
	}
	quoteCount, err := b.Quotes.Count(ctx)
	if err != nil {
		return nil, err
	}
	withComics, err := b.Quotes.CountWithComics(ctx)
	if err != nil {
		return nil, err
	}
	requestCount, err := b.Requests.Count(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<b>Admin statistics</b>\n\n")
	fmt.Fprintf(&sb, "Users: <b>%d</b>\n", userCount)
	fmt.Fprintf(&sb, "Quotes <b>%d</b>, with comics <b>%d</b>\n", quoteCount, withComics)
	fmt.Fprintf(&sb, "Requests: <b>%d</b>\n\n", requestCount)
	fmt.Fprintf(&sb, "Running since <b>%s</b> (<b>%s</b>)\n", b.started.Format("02.01.2006 15:04:05"), elapsed(time.Since(b.started)))

	first, ok, err := b.Requests.FirstInteractionTime(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		fmt.Fprintf(&sb, "First request <b>%s</b> ago", elapsed(time.Since(first)))
	}
	return nil, b.reply(ctx, req, sb.String())
}

func (b *Bot) onUpdateQuote(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return nil, b.reply(ctx, req, "Quote number is missing: /update_quote 123")
	}
	if b.Ingest == nil {
		return nil, b.reply(ctx, req, "Ingestion is disabled")
	}

	outcome, err := b.Ingest.UpdateQuote(ctx, id)
	if err != nil {
		return nil, err
	}

	var text string
	switch outcome {
	case ingest.NotOnSource:
		return nil, b.reply(ctx, req, fmt.Sprintf("Quote #%d is not on the source", id))
	case ingest.Created:
		text = fmt.Sprintf("Quote #%d added", id)
	case ingest.Updated:
		text = fmt.Sprintf("Quote #%d updated", id)
	default:
		text = fmt.Sprintf("Quote #%d is up to date", id)
	}
	if err := b.reply(ctx, req, text); err != nil {
		return nil, err
	}

	q, err := b.Quotes.GetByID(ctx, id)
	if err != nil || q == nil {
		return nil, err
	}
	return nil, b.sendQuote(ctx, req, q, telegram.SendOptions{ReplyTo: req.MessageID})
}

func (b *Bot) onUsers(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	page := parsePage(req.Args)
	list, total, err := b.Users.Page(ctx, page, itemsPerPage)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Users (%d):\n", total)
	for i, u := range list {
		fmt.Fprintf(&sb, "%d. %s [%d]\n", (page-1)*itemsPerPage+i+1, escape(u.DisplayName()), u.ID)
	}
	return nil, b.reply(ctx, req, sb.String())
}

func (b *Bot) onChats(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	page := parsePage(req.Args)
	list, total, err := b.Users.PageChats(ctx, page, itemsPerPage, "group", "supergroup", "channel")
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Chats (%d):\n", total)
	for i, c := range list {
		fmt.Fprintf(&sb, "%d. %s [%d]\n", (page-1)*itemsPerPage+i+1, escape(c.Title), c.ID)
	}
	return nil, b.reply(ctx, req, sb.String())
}

func (b *Bot) onErrors(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	page := parsePage(req.Args)
	list, total, err := b.Errors.Page(ctx, page, errorsPerPage)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, b.reply(ctx, req, "No errors")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Errors (%d):\n", total)
	for i, e := range list {
		text := e.Text
		if r := []rune(text); len(r) > 200 {
			text = string(r[:200]) + "..."
		}
		fmt.Fprintf(&sb, "%d. %s %s: %s\n",
			(page-1)*errorsPerPage+i+1,
			e.CreatedAt.Format("02.01.2006 15:04:05"),
			escape(e.Command),
			escape(text),
		)
	}
	return nil, b.reply(ctx, req, sb.String())
}
