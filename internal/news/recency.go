package news

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TimeStrategy parses one family of timestamp shapes.
type TimeStrategy struct {
	Name  string
	Parse func(raw string) (time.Time, bool)
}

func layout(name string, layouts ...string) TimeStrategy {
	return TimeStrategy{
		Name: name,
		Parse: func(raw string) (time.Time, bool) {
			for _, l := range layouts {
				if t, err := time.Parse(l, raw); err == nil {
					return withZoneOffset(t), true
				}
			}
			return time.Time{}, false
		},
	}
}

// zoneOffsets covers the abbreviations feeds commonly use. time.Parse
// gives an abbreviation unknown to the local zone database a zero offset.
var zoneOffsets = map[string]int{
	"EST":  -5,
	"EDT":  -4,
	"CST":  -6,
	"CDT":  -5,
	"MST":  -7,
	"MDT":  -6,
	"PST":  -8,
	"PDT":  -7,
	"AKST": -9,
	"AKDT": -8,
	"HST":  -10,
	"WEST": 1,
	"BST":  1,
	"CET":  1,
	"CEST": 2,
	"EET":  2,
	"EEST": 3,
	"MSK":  3,
	"JST":  9,
	"AEST": 10,
	"AEDT": 11,
}

func withZoneOffset(t time.Time) time.Time {
	name, offset := t.Zone()
	if offset != 0 {
		return t
	}
	hours, ok := zoneOffsets[name]
	if !ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(name, hours*3600))
}

// naive parses layouts without zone information as UTC.
func naive(name string, layouts ...string) TimeStrategy {
	return TimeStrategy{
		Name: name,
		Parse: func(raw string) (time.Time, bool) {
			for _, l := range layouts {
				if t, err := time.ParseInLocation(l, raw, time.UTC); err == nil {
					return t, true
				}
			}
			return time.Time{}, false
		},
	}
}

// DefaultStrategies returns the timestamp shapes tried by a Resolver,
// most specific first.
func DefaultStrategies() []TimeStrategy {
	return []TimeStrategy{
		layout("rfc822-zone",
			time.RFC1123Z,
			time.RFC1123,
			"Mon, 2 Jan 2006 15:04:05 -0700",
			"Mon, 2 Jan 2006 15:04:05 MST",
			time.RFC822Z,
			time.RFC822,
			"2 Jan 2006 15:04:05 -0700",
		),
		naive("rfc822-nozone",
			"Mon, 02 Jan 2006 15:04:05",
			"Mon, 2 Jan 2006 15:04:05",
			"02 Jan 2006 15:04:05",
		),
		layout("iso8601-z", "2006-01-02T15:04:05Z", "2006-01-02T15:04:05.999999999Z"),
		layout("iso8601-offset", time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05-0700"),
		naive("iso8601-naive", "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"),
		naive("space-datetime", time.DateTime, "2006-01-02 15:04", "2006/01/02 15:04:05"),
		naive("date-only", time.DateOnly, "2006/01/02", "02 Jan 2006", "Jan 2, 2006"),
		{
			Name: "lenient",
			Parse: func(raw string) (time.Time, bool) {
				t, err := dateparse.ParseIn(raw, time.UTC)
				if err != nil {
					return time.Time{}, false
				}
				return t, true
			},
		},
	}
}

// Resolver turns raw published strings into ages.
type Resolver struct {
	strategies []TimeStrategy
}

// NewResolver builds a Resolver. With no strategies the defaults are used.
func NewResolver(strategies ...TimeStrategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{strategies: strategies}
}

// Strategies returns the ordered strategy list.
func (r *Resolver) Strategies() []TimeStrategy {
	return r.strategies
}

// Parse returns the publish time and the name of the strategy that matched.
func (r *Resolver) Parse(raw string) (time.Time, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, "", false
	}
	for _, s := range r.strategies {
		if t, ok := safeParse(s, raw); ok {
			return t, s.Name, true
		}
	}
	return time.Time{}, "", false
}

// Resolve returns the age of raw relative to now. Unparseable input yields
// UnknownAge; publish times in the future resolve to a zero age.
func (r *Resolver) Resolve(raw string, now time.Time) Age {
	t, _, ok := r.Parse(raw)
	if !ok {
		return UnknownAge()
	}
	return KnownAge(now.Sub(t))
}

func safeParse(s TimeStrategy, raw string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	return s.Parse(raw)
}
