package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/graffic/quotebot/internal/quotes"
)

var escape = html.EscapeString

func yearsText(years []int) string {
	if len(years) == 0 {
		return "all"
	}
	parts := make([]string, 0, len(years))
	for _, y := range years {
		parts = append(parts, fmt.Sprintf("%d", y))
	}
	return strings.Join(parts, ", ")
}

func yearCountLines(counts []quotes.YearCount) string {
	var sb strings.Builder
	for _, c := range counts {
		fmt.Fprintf(&sb, "    <b>%d</b>: %d\n", c.Year, c.Count)
	}
	return sb.String()
}

// joinLimited joins items with sep and cuts the list with "..." so the
// result stays within limit bytes.
func joinLimited(items []string, sep string, limit int) string {
	const more = "..."
	var sb strings.Builder
	for i, item := range items {
		add := item
		if i > 0 {
			add = sep + item
		}
		if sb.Len()+len(add)+len(more) > limit {
			sb.WriteString(more)
			break
		}
		sb.WriteString(add)
	}
	return sb.String()
}

// elapsed renders a duration in days, hours and minutes.
func elapsed(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
