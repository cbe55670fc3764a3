package news

import (
	"fmt"
	"strings"
	"time"
)

// Category is a digest section.
type Category string

const (
	CategoryLocal  Category = "local"
	CategoryGlobal Category = "global"
	CategoryTech   Category = "tech"
	CategorySports Category = "sports"
	CategoryCrypto Category = "crypto"
)

// Categories lists all known categories in digest order.
var Categories = []Category{CategoryLocal, CategoryGlobal, CategoryTech, CategorySports, CategoryCrypto}

// ParseCategory converts a config/user value into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Entry is one fetched feed item on its way through a digest build.
type Entry struct {
	Title        string
	Link         string
	Source       string
	Category     Category
	PublishedRaw string

	// Position is the zero-based index of the item in its own source's feed.
	Position int

	Age         Age
	Importance  int
	TotalScore  float64
	Fingerprint string
}

// Age is the elapsed time since publish, or unknown when the timestamp
// could not be parsed.
type Age struct {
	d     time.Duration
	known bool
}

// KnownAge returns an Age of d. Negative durations are clamped to zero.
func KnownAge(d time.Duration) Age {
	if d < 0 {
		d = 0
	}
	return Age{d: d, known: true}
}

// UnknownAge returns the unknown Age.
func UnknownAge() Age {
	return Age{}
}

func (a Age) Known() bool             { return a.known }
func (a Age) Duration() time.Duration { return a.d }

// Younger reports whether a is strictly more recent than b.
// Known ages are always considered younger than unknown ones.
func (a Age) Younger(b Age) bool {
	switch {
	case a.known && b.known:
		return a.d < b.d
	case a.known:
		return true
	default:
		return false
	}
}

// Label renders the age for humans: "just now", "3min ago", "2hr ago", "5d ago".
// Unknown ages render as "recent".
func (a Age) Label() string {
	if !a.known {
		return "recent"
	}
	switch {
	case a.d < time.Minute:
		return "just now"
	case a.d < time.Hour:
		return fmt.Sprintf("%dmin ago", int(a.d.Minutes()))
	case a.d < 24*time.Hour:
		return fmt.Sprintf("%dhr ago", int(a.d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(a.d.Hours()/24))
	}
}

func (a Age) String() string {
	if !a.known {
		return "unknown"
	}
	return a.d.String()
}
