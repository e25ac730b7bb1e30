package quotes

import (
	"fmt"
	"html"
	"strings"
)

// DateFormat is the day format shown to users and accepted by /date.
const DateFormat = "02.01.2006"

// Renderer formats quotes as Telegram HTML.
type Renderer struct{}

// NewRenderer creates a new quote renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderOptions contains options for rendering a quote
type RenderOptions struct {
	Quote        *Quote
	IncludeDate  bool
	IncludeLinks bool
}

// Render formats a quote: a header line with the linked id, the date and the
// rating, followed by the escaped text.
func (r *Renderer) Render(opts RenderOptions) (string, error) {
	if opts.Quote == nil {
		return "", fmt.Errorf("cannot render nil quote")
	}
	q := opts.Quote

	var header []string
	if opts.IncludeLinks && q.URL != "" {
		header = append(header, fmt.Sprintf(`<a href="%s">#%d</a>`, html.EscapeString(q.URL), q.ID))
	} else {
		header = append(header, fmt.Sprintf("#%d", q.ID))
	}
	if opts.IncludeDate {
		header = append(header, q.Date.Format(DateFormat))
	}
	header = append(header, fmt.Sprintf("%+d", q.Rating))

	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = "(no text)"
	}

	out := strings.Join(header, " | ") + "\n" + html.EscapeString(text)
	if n := len(q.Comics); n > 0 {
		out += fmt.Sprintf("\n\ncomics: %d", n)
	}
	return out, nil
}

// RenderSimple renders a quote with its date and source link
func (r *Renderer) RenderSimple(q *Quote) (string, error) {
	return r.Render(RenderOptions{Quote: q, IncludeDate: true, IncludeLinks: true})
}
