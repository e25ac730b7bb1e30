package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/telegram"
)

// Exhausted texts
const (
	exhaustedText = "No unique quotes left."
	relaxHint     = " Try removing the year or length filter: /settings"
)

func (b *Bot) onQuote(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	if userID == 0 {
		return nil, nil
	}

	q, err := b.Cache.GetNext(ctx, userID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		text := exhaustedText
		f, err := b.Users.Filters(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !f.IsZero() {
			text += relaxHint
		}
		return nil, b.reply(ctx, req, text)
	}

	if err := b.sendQuote(ctx, req, q, telegram.SendOptions{}); err != nil {
		return nil, err
	}
	return &handler.Result{Quotes: []int64{q.ID}}, nil
}

func (b *Bot) onGet(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return nil, b.reply(ctx, req, "Quote number is missing: /get 123")
	}
	q, err := b.Quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, b.reply(ctx, req, fmt.Sprintf("Quote #%d is not in the database", id))
	}
	if err := b.sendQuote(ctx, req, q, telegram.SendOptions{ReplyTo: req.MessageID}); err != nil {
		return nil, err
	}
	return &handler.Result{Quotes: []int64{q.ID}}, nil
}

func (b *Bot) onGetQuotes(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	ids, ok := parseIDs(req.Args)
	if !ok {
		return nil, b.reply(ctx, req, "Quote numbers are missing: /get_quotes 1,2,3")
	}
	return b.deliver(ctx, req, ids, req.MessageID)
}

// onQuotesCallback handles "quotes_<message id>_<id,id,...>" from search
// result buttons.
func (b *Bot) onQuotesCallback(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	msg, list, found := strings.Cut(req.Args, "_")
	if !found {
		return nil, nil
	}
	replyTo, ok := parseID(msg)
	if !ok {
		return nil, nil
	}
	ids, ok := parseIDs(list)
	if !ok {
		return nil, nil
	}
	return b.deliver(ctx, req, ids, int(replyTo))
}

// deliver sends the stored quotes among ids, reporting missing ones.
func (b *Bot) deliver(ctx context.Context, req *handler.Request, ids []int64, replyTo int) (*handler.Result, error) {
	found, err := b.Quotes.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*quotes.Quote, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	res := &handler.Result{}
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			if err := b.send(ctx, req, fmt.Sprintf("Quote #%d is not in the database", id), telegram.SendOptions{ReplyTo: replyTo}); err != nil {
				return res, err
			}
			continue
		}
		if err := b.sendQuote(ctx, req, q, telegram.SendOptions{ReplyTo: replyTo}); err != nil {
			return res, err
		}
		res.Quotes = append(res.Quotes, id)
	}
	return res, nil
}

func (b *Bot) onComics(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return nil, nil
	}
	q, err := b.Quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil || len(q.Comics) == 0 {
		return nil, b.reply(ctx, req, fmt.Sprintf("Quote #%d has no comics", id))
	}
	return nil, b.Client.SendPhotos(ctx, req.ChatID, q.ComicsURLs(), req.MessageID)
}

func (b *Bot) onDate(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	day, rest, _ := strings.Cut(strings.TrimSpace(req.Args), " ")
	return b.showDate(ctx, req, day, parsePage(rest))
}

// onDateCallback handles "date_<dd.mm.yyyy>_<page>".
func (b *Bot) onDateCallback(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	day, page, _ := strings.Cut(req.Args, "_")
	return b.showDate(ctx, req, day, parsePage(page))
}

func (b *Bot) showDate(ctx context.Context, req *handler.Request, day string, page int) (*handler.Result, error) {
	date, err := time.Parse(quotes.DateFormat, day)
	if err != nil {
		return nil, b.reply(ctx, req, "Use a date like /date 13.10.2006")
	}

	found, total, err := b.Quotes.ByDate(ctx, date, page, 1)
	if err != nil {
		return nil, err
	}

	if total == 0 {
		before, after, err := b.Quotes.NearestDates(ctx, date)
		if err != nil {
			return nil, err
		}
		var row []telegram.Button
		if before != nil {
			d := before.Format(quotes.DateFormat)
			row = append(row, telegram.Button{Text: "⬅️ " + d, Data: datePrefix + d + "_1"})
		}
		if after != nil {
			d := after.Format(quotes.DateFormat)
			row = append(row, telegram.Button{Text: "➡️ " + d, Data: datePrefix + d + "_1"})
		}
		opts := telegram.SendOptions{ReplyTo: req.MessageID}
		if len(row) > 0 {
			opts.Buttons = [][]telegram.Button{row}
		}
		text := fmt.Sprintf("There are no quotes for <b>%s</b>. How about the nearest dates?", day)
		return nil, b.send(ctx, req, text, opts)
	}
	if len(found) == 0 {
		return nil, b.reply(ctx, req, fmt.Sprintf("Only %d quotes for %s", total, day))
	}

	var nav []telegram.Button
	if page > 1 {
		nav = append(nav, telegram.Button{Text: fmt.Sprintf("⬅️ %d", page-1), Data: fmt.Sprintf("%s%s_%d", datePrefix, day, page-1)})
	}
	if int64(page) < total {
		nav = append(nav, telegram.Button{Text: fmt.Sprintf("%d ➡️", page+1), Data: fmt.Sprintf("%s%s_%d", datePrefix, day, page+1)})
	}
	opts := telegram.SendOptions{ReplyTo: req.MessageID}
	if len(nav) > 0 {
		opts.Buttons = [][]telegram.Button{nav}
	}

	q := &found[0]
	if err := b.sendQuote(ctx, req, q, opts); err != nil {
		return nil, err
	}
	return &handler.Result{Quotes: []int64{q.ID}}, nil
}
