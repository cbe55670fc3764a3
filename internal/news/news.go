package news

import (
	"regexp"
	"strings"
	"sync"
)

// KeywordSet is a named group of title terms that adds Bonus to an
// entry's importance when any of them matches.
type KeywordSet struct {
	Name  string   `yaml:"name"`
	Bonus int      `yaml:"bonus"`
	Terms []string `yaml:"terms"`
}

// Breaking news markers
var breakingKeywords = []string{
	"breaking", "urgent", "just in", "live", "developing", "alert", "exclusive",
}

// Casualties, disasters, emergencies
var impactKeywords = []string{
	"killed", "dead", "deaths", "casualties", "injured", "earthquake", "flood",
	"wildfire", "hurricane", "explosion", "crash", "disaster", "evacuat", "emergency",
}

var politicsKeywords = []string{
	"election", "president", "prime minister", "parliament", "government",
	"minister", "sanctions", "referendum", "vote", "law",
}

// Market moving terms (also used for crypto)
var marketKeywords = []string{
	"inflation", "interest rate", "central bank", "fed", "recession", "stocks",
	"market", "bitcoin", "ethereum", "etf", "crash", "surge", "record high", "plunge",
}

var conflictKeywords = []string{
	"war", "invasion", "missile", "attack", "strike", "troops", "ceasefire", "drone", "military",
}

// DefaultKeywordSets returns the stock keyword dictionaries.
func DefaultKeywordSets() []KeywordSet {
	return []KeywordSet{
		{Name: "breaking", Bonus: 15, Terms: breakingKeywords},
		{Name: "impact", Bonus: 12, Terms: impactKeywords},
		{Name: "politics", Bonus: 6, Terms: politicsKeywords},
		{Name: "markets", Bonus: 8, Terms: marketKeywords},
		{Name: "conflict", Bonus: 10, Terms: conflictKeywords},
	}
}

var (
	wordRegexpMu sync.Mutex
	wordRegexps  = map[string]*regexp.Regexp{}
)

func wordRegexp(k string) *regexp.Regexp {
	wordRegexpMu.Lock()
	defer wordRegexpMu.Unlock()
	re, ok := wordRegexps[k]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		wordRegexps[k] = re
	}
	return re
}

// containsAny distinguishes phrases and short words (avoids "ai" matching "said")
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		// Phrases -> substring match
		if strings.Contains(k, " ") {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		// Short tokens (<=3) -> whole word match
		if len(k) <= 3 {
			if wordRegexp(k).MatchString(text) {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
