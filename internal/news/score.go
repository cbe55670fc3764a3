package news

// Scoring defaults.
const (
	DefaultPositionBase = 10
	DefaultSourceWeight = 5
)

// Scorer assigns importance to entries from feed position, source
// credibility and keyword signals. All tables are configuration.
type Scorer struct {
	// PositionBase is the bonus of the first item in a feed; each later
	// position earns one point less, down to zero.
	PositionBase  int
	Weights       map[string]int
	DefaultWeight int
	Keywords      []KeywordSet
}

// NewScorer returns a Scorer with the default position base and keyword sets.
func NewScorer(weights map[string]int) *Scorer {
	return &Scorer{
		PositionBase:  DefaultPositionBase,
		Weights:       weights,
		DefaultWeight: DefaultSourceWeight,
		Keywords:      DefaultKeywordSets(),
	}
}

// Score computes the importance of e at the given feed position. The
// result is never negative.
func (s *Scorer) Score(e Entry, position int) int {
	score := nonNegative(s.PositionBase - position)
	score += nonNegative(s.weight(e.Source))

	for _, set := range s.Keywords {
		if containsAny(e.Title, set.Terms) {
			score += nonNegative(set.Bonus)
		}
	}
	return score
}

func (s *Scorer) weight(source string) int {
	if w, ok := s.Weights[source]; ok {
		return w
	}
	return s.DefaultWeight
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
