package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/graffic/quotebot/internal/bot/handler"
)

func (b *Bot) onSettings(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	if userID == 0 {
		return nil, nil
	}
	f, err := b.Users.Filters(ctx, userID)
	if err != nil {
		return nil, err
	}
	available, err := b.Quotes.YearsWithData(ctx)
	if err != nil {
		return nil, err
	}

	length := "off"
	if f.MaxTextLength > 0 {
		length = strconv.Itoa(f.MaxTextLength)
	}

	text := fmt.Sprintf(
		"<b>Settings</b>\n\nYears: <b>%s</b>\nMax length: <b>%s</b>\n\nAvailable years: %s\n\n"+
			"Change with /years 2004,2005 or /years all\nand /max_length 300 or /max_length off",
		yearsText(f.Years), length, yearsText(available),
	)
	return nil, b.reply(ctx, req, text)
}

// parseYears reads "all" or a list of years.
func parseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return []int{}, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("no years given")
	}
	years := make([]int, 0, len(fields))
	for _, f := range fields {
		y, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", f)
		}
		years = append(years, y)
	}
	return years, nil
}

func (b *Bot) onYears(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	if userID == 0 {
		return nil, nil
	}
	years, err := parseYears(req.Args)
	if err != nil {
		return nil, b.reply(ctx, req, "Use /years 2004,2005 or /years all")
	}

	available, err := b.Quotes.YearsWithData(ctx)
	if err != nil {
		return nil, err
	}
	for _, y := range years {
		if !slices.Contains(available, y) {
			return nil, b.reply(ctx, req, fmt.Sprintf("There are no quotes from %d", y))
		}
	}

	changed, err := b.Users.SetYears(ctx, userID, years)
	if err != nil {
		return nil, err
	}
	if changed {
		b.Cache.Invalidate(userID)
	}

	f, err := b.Users.Filters(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nil, b.reply(ctx, req, fmt.Sprintf("Years: <b>%s</b>", yearsText(f.Years)))
}

func (b *Bot) onMaxLength(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	userID := req.UserID()
	if userID == 0 {
		return nil, nil
	}

	var limit *int
	arg := strings.TrimSpace(req.Args)
	if !strings.EqualFold(arg, "off") {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return nil, b.reply(ctx, req, "Use /max_length 300 or /max_length off")
		}
		limit = &n
	}

	changed, err := b.Users.SetMaxTextLength(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if changed {
		b.Cache.Invalidate(userID)
	}

	if limit == nil {
		return nil, b.reply(ctx, req, "Max length: <b>off</b>")
	}
	return nil, b.reply(ctx, req, fmt.Sprintf("Max length: <b>%d</b>", *limit))
}
