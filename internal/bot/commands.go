package bot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/graffic/quotebot/internal/bot/handler"
	"github.com/graffic/quotebot/internal/telegram"
)

// Callback data prefixes
const (
	comicsPrefix      = "comics_"
	quotesPrefix      = "quotes_"
	datePrefix        = "date_"
	comicsStatsData   = "stats_comics"
	quoteStatsData    = "stats_quotes"
	maxMessageLength  = 4096
	itemsPerPage      = 20
	errorsPerPage     = 10
	maxSearchButtons  = 50
	searchButtonGroup = 5
)

var datePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

type command struct {
	name        string
	description string
	admin       bool
	fn          handler.Func
}

type callback struct {
	prefix string
	fn     handler.Func
}

func (b *Bot) registerCommands() {
	for _, c := range []*command{
		{name: "/start", fn: b.onHelp},
		{name: "/help", description: "List commands", fn: b.onHelp},
		{name: "/quote", description: "Random quote you have not seen", fn: b.onQuote},
		{name: "/settings", description: "Show your filters", fn: b.onSettings},
		{name: "/years", description: "Filter by years: /years 2004,2005 or /years all", fn: b.onYears},
		{name: "/max_length", description: "Filter by length: /max_length 300 or /max_length off", fn: b.onMaxLength},
		{name: "/stats", description: "Your statistics", fn: b.onUserStats},
		{name: "/cache", description: "Quotes prefetched for you", fn: b.onCache},
		{name: "/get_number_of_unique_quotes", description: "Unseen quotes left", fn: b.onUniqueCount},
		{name: "/get_detail_of_unique_quotes", description: "Unseen quotes left per year", fn: b.onUniqueDetail},
		{name: "/quote_stats", description: "Quotes per year", fn: b.onQuoteStats},
		{name: "/comics_stats", description: "Quotes with comics per year", fn: b.onComicsStats},
		{name: "/get_used_quote", description: "Where a quote is in your history: /get_used_quote 123", fn: b.onUsedQuote},
		{name: "/get_used_last_quote", description: "Where your last quote is in your history", fn: b.onUsedLastQuote},
		{name: "/find", description: "Search quotes: /find regexp", fn: b.onFind},
		{name: "/find_my", description: "Search quotes you have seen", fn: b.onFindMy},
		{name: "/find_new", description: "Search quotes you have not seen", fn: b.onFindNew},
		{name: "/get", description: "Quote by id: /get 123", fn: b.onGet},
		{name: "/date", description: "Quotes of a day: /date 13.10.2006", fn: b.onDate},
		{name: "/get_quotes", description: "Several quotes: /get_quotes 1,2,3", fn: b.onGetQuotes},
		{name: "/admin_stats", admin: true, description: "Bot statistics", fn: b.onAdminStats},
		{name: "/update_quote", admin: true, description: "Refresh a quote from the source", fn: b.onUpdateQuote},
		{name: "/users", admin: true, description: "Known users", fn: b.onUsers},
		{name: "/chats", admin: true, description: "Known group chats", fn: b.onChats},
		{name: "/errors", admin: true, description: "Recorded errors", fn: b.onErrors},
	} {
		b.commands[c.name] = c
	}

	b.callbacks = []callback{
		{prefix: comicsPrefix, fn: b.onComics},
		{prefix: quotesPrefix, fn: b.onQuotesCallback},
		{prefix: datePrefix, fn: b.onDateCallback},
		{prefix: comicsStatsData, fn: b.onComicsStats},
		{prefix: quoteStatsData, fn: b.onQuoteStats},
	}
}

// Commands returns the public command menu.
func (b *Bot) Commands() []telegram.Command {
	var out []telegram.Command
	for _, name := range b.commandNames(false) {
		c := b.commands[name]
		out = append(out, telegram.Command{
			Command:     strings.TrimPrefix(c.name, "/"),
			Description: c.description,
		})
	}
	return out
}

func (b *Bot) commandNames(admin bool) []string {
	var names []string
	for name, c := range b.commands {
		if c.description == "" || c.admin != admin {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (b *Bot) onHelp(ctx context.Context, req *handler.Request) (*handler.Result, error) {
	var sb strings.Builder
	sb.WriteString("Send any message or /quote to get a quote you have not seen yet.\n\n")
	for _, name := range b.commandNames(false) {
		fmt.Fprintf(&sb, "%s - %s\n", name, escape(b.commands[name].description))
	}
	if b.IsAdmin(req.UserID()) {
		sb.WriteString("\nAdmin:\n")
		for _, name := range b.commandNames(true) {
			fmt.Fprintf(&sb, "%s - %s\n", name, escape(b.commands[name].description))
		}
	}
	return nil, b.reply(ctx, req, sb.String())
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// parseID reads a positive id, accepting an optional leading '#'.
func parseID(s string) (int64, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseIDs reads a comma or space separated id list.
func parseIDs(s string) ([]int64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, false
	}
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, ok := parseID(f)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func parsePage(s string) int {
	page, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
