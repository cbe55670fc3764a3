package digest

import (
	"fmt"
	"html"
	"strings"

	"github.com/deusflow/newsdigest/internal/news"
)

// EmptyPlaceholder marks a section with nothing to show.
const EmptyPlaceholder = "— no news available —"

// Render formats up to limit entries as a numbered Telegram HTML list under
// a bold title. A limit of zero renders every entry.
func Render(title string, entries []news.Entry, limit int) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>\n")

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	if limit == 0 {
		b.WriteString("<i>")
		b.WriteString(EmptyPlaceholder)
		b.WriteString("</i>\n")
		return b.String()
	}

	for i, e := range entries[:limit] {
		headline := html.EscapeString(e.Title)
		if e.Link != "" {
			headline = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(e.Link), headline)
		}
		fmt.Fprintf(&b, "%d. %s\n    <i>%s · %s</i>\n", i+1, headline, html.EscapeString(e.Source), e.Age.Label())
	}
	return b.String()
}
