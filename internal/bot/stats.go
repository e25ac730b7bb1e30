package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/telegram"
)

func (b *Bot) onUserStats(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	if userID == 0 {
		return nil, nil
	}

	seen, err := b.Requests.DistinctQuotesSeen(ctx, userID)
	if err != nil {
		return nil, err
	}
	withComics, err := b.Quotes.CountWithComics(ctx, requests.SeenBy(userID))
	if err != nil {
		return nil, err
	}
	total, err := b.Requests.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	first, last, ok, err := b.Requests.Span(ctx, userID)
	if err != nil {
		return nil, err
	}
	days := 0
	if ok {
		days = int(last.Sub(first).Hours() / 24)
	}

	text := fmt.Sprintf(
		"<b>Statistics</b>\n\nQuotes received: <b>%d</b>, with comics <b>%d</b>\nRequests: <b>%d</b>\nDays between first and last request: <b>%d</b>",
		seen, withComics, total, days,
	)
	return nil, b.reply(ctx, req, text)
}

func (b *Bot) onCache(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	return nil, b.reply(ctx, req, fmt.Sprintf("Quotes in your cache: <b>%d</b>", b.Cache.Size(req.UserID())))
}

func (b *Bot) onUniqueCount(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	f, err := b.Users.Filters(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := b.Selector.CountRemaining(ctx, userID, f.Years)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("<b>Unique quotes left</b>\n\nLeft: <b>%d</b>", n)
	if len(f.Years) > 0 {
		text += fmt.Sprintf("\nYears: <b>%s</b>", yearsText(f.Years))
	}
	return nil, b.reply(ctx, req, text)
}

func (b *Bot) onUniqueDetail(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	counts, err := b.Selector.CountRemainingByYear(ctx, req.UserID(), nil)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}

	text := fmt.Sprintf("<b>Unique quotes left</b>\n\nTotal <b>%d</b>:\n%s", total, yearCountLines(counts))
	return nil, b.reply(ctx, req, strings.TrimSpace(text))
}

func (b *Bot) onQuoteStats(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	total, err := b.Quotes.Count(ctx)
	if err != nil {
		return nil, err
	}
	withComics, err := b.Quotes.CountWithComics(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := b.Quotes.CountByYear(ctx)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("<b>Quote statistics</b>\n\nTotal <b>%d</b>, with comics <b>%d</b>:\n%s", total, withComics, yearCountLines(counts))
	return nil, b.send(ctx, req, strings.TrimSpace(text), telegram.SendOptions{
		ReplyTo: req.MessageID,
		Buttons: [][]telegram.Button{{{Text: "➡️ Comics", Data: comicsStatsData}}},
	})
}

func (b *Bot) onComicsStats(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	years, err := b.Quotes.YearsWithData(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	counts := make([]quotes.YearCount, 0, len(years))
	for _, y := range years {
		n, err := b.Quotes.CountWithComics(ctx, quotes.Filter{Years: []int{y}}.Scope())
		if err != nil {
			return nil, err
		}
		counts = append(counts, quotes.YearCount{Year: y, Count: n})
		total += n
	}

	text := fmt.Sprintf("<b>Comics statistics</b>\n\nTotal <b>%d</b>:\n%s", total, yearCountLines(counts))
	return nil, b.send(ctx, req, strings.TrimSpace(text), telegram.SendOptions{
		ReplyTo: req.MessageID,
		Buttons: [][]telegram.Button{{{Text: "⬅️ Quotes", Data: quoteStatsData}}},
	})
}

func (b *Bot) onUsedQuote(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return nil, b.reply(ctx, req, "Quote number is missing: /get_used_quote 123")
	}
	return nil, b.replyOccurrences(ctx, req, id)
}

func (b *Bot) onUsedLastQuote(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	id, ok, err := b.Requests.LastQuoteSeenBy(ctx, req.UserID())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, b.reply(ctx, req, "You have not received any quote yet")
	}
	return nil, b.replyOccurrences(ctx, req, id)
}

func (b *Bot) replyOccurrences(ctx context.Context, req *handler.Request, quoteID int64) error {
	found, err := b.Requests.Occurrences(ctx, req.UserID(), quoteID)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return b.reply(ctx, req, fmt.Sprintf("Quote #%d is not in your history", quoteID))
	}
	positions := make([]string, 0, len(found))
	for _, o := range found {
		positions = append(positions, fmt.Sprintf("%d", o.Position))
	}
	return b.reply(ctx, req, fmt.Sprintf("Quote #%d found at %s", quoteID, "["+strings.Join(positions, ", ")+"]"))
}
