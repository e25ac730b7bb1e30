package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/telegram"
)

func (b *Bot) onFind(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	return b.find(ctx, req)
}

func (b *Bot) onFindMy(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	return b.find(ctx, req, requests.SeenBy(req.UserID()))
}

func (b *Bot) onFindNew(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	return b.find(ctx, req, requests.NotSeenBy(req.UserID()))
}

func (b *Bot) find(ctx context.Context, req *handler.Request, scopes ...quotes.Scope) (*handler.Result, error) {
	pattern := strings.TrimSpace(req.Args)
	if pattern == "" {
		return nil, b.reply(ctx, req, "Use "+req.Command+" followed by a regular expression")
	}

	ids, err := b.Quotes.FindByRegex(ctx, pattern, true, scopes...)
	if errors.Is(err, quotes.ErrInvalidPattern) {
		return nil, b.reply(ctx, req, "Invalid regular expression: "+escape(err.Error()))
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, b.reply(ctx, req, "Nothing found")
	}

	return nil, b.send(ctx, req, searchText(ids), telegram.SendOptions{
		ReplyTo:        req.MessageID,
		DisablePreview: true,
		Buttons:        searchButtons(ids, req.MessageID),
	})
}

func searchText(ids []int64) string {
	header := fmt.Sprintf("Found %d:\n", len(ids))
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, "#"+itoa(id))
	}
	return header + joinLimited(items, ", ", maxMessageLength-len(header))
}

// searchButtons groups the first results into buttons delivering five
// quotes each: "1-5", "6-10" and so on.
func searchButtons(ids []int64, messageID int) [][]telegram.Button {
	if len(ids) > maxSearchButtons {
		ids = ids[:maxSearchButtons]
	}

	var buttons []telegram.Button
	for i := 0; i < len(ids); i += searchButtonGroup {
		group := ids[i:min(i+searchButtonGroup, len(ids))]
		label := fmt.Sprintf("%d-%d", i+1, i+len(group))
		if len(group) == 1 {
			label = fmt.Sprintf("%d", i+1)
		}
		list := make([]string, 0, len(group))
		for _, id := range group {
			list = append(list, itoa(id))
		}
		buttons = append(buttons, telegram.Button{
			Text: label,
			Data: fmt.Sprintf("%s%d_%s", quotesPrefix, messageID, strings.Join(list, ",")),
		})
	}

	var rows [][]telegram.Button
	for i := 0; i < len(buttons); i += 5 {
		rows = append(rows, buttons[i:min(i+5, len(buttons))])
	}
	return rows
}
