package news

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
)

// TitleMaxRunes is the cap applied to feed titles.
const TitleMaxRunes = 120

const ellipsis = "…"

// Fingerprint creates a stable dedup key from title and source name.
// Case and surrounding/inner whitespace do not affect the result.
func Fingerprint(title, source string) string {
	fold := cases.Fold()
	t := strings.Join(strings.Fields(fold.String(title)), " ")
	s := strings.Join(strings.Fields(fold.String(source)), " ")

	h := sha256.New()
	h.Write([]byte(t + "|" + s))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CleanTitle strips HTML markup, collapses whitespace and caps the
// result at max runes, marking truncation with an ellipsis.
func CleanTitle(raw string, max int) string {
	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, max)
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := max - utf8.RuneCountInString(ellipsis)
	if cut < 1 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:cut])) + ellipsis
}
