package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsdigest/internal/digest"
	"github.com/deusflow/newsdigest/internal/news"
	"github.com/deusflow/newsdigest/internal/rss"
)

// Tuning holds the selection knobs of the digest engine.
type Tuning struct {
	TargetCount    int           `yaml:"target_count"`
	MaxPerSource   int           `yaml:"max_per_source"`
	Lookback       time.Duration `yaml:"lookback"`
	Retention      time.Duration `yaml:"retention"`
	PerSourceLimit int           `yaml:"per_source_limit"`
	Dedup          string        `yaml:"dedup"` // category | global
}

type Scoring struct {
	PositionBase  int `yaml:"position_base"`
	DefaultWeight int `yaml:"default_weight"`
}

type CategoryConfig struct {
	Category string       `yaml:"category"`
	Title    string       `yaml:"title"`
	Sources  []rss.Source `yaml:"sources"`
}

// Sources is the YAML feed and tuning table:
//
//	tuning:
//	  target_count: 5
//	categories:
//	  - category: local
//	    sources:
//	      - name: DR
//	        url: https://www.dr.dk/nyheder/service/feeds/allenyheder
//	        weight: 10
type Sources struct {
	Tuning     Tuning            `yaml:"tuning"`
	Scoring    Scoring           `yaml:"scoring"`
	Keywords   []news.KeywordSet `yaml:"keywords"`
	Categories []CategoryConfig  `yaml:"categories"`
}

// LoadSources reads and validates the sources file at path.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

func ParseSources(data []byte) (*Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources yaml: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("validate sources: %w", err)
	}
	return &s, nil
}

func (s *Sources) applyDefaults() {
	if s.Tuning.TargetCount == 0 {
		s.Tuning.TargetCount = digest.DefaultTargetCount
	}
	if s.Tuning.MaxPerSource == 0 {
		s.Tuning.MaxPerSource = digest.DefaultMaxPerSource
	}
	if s.Tuning.Lookback == 0 {
		s.Tuning.Lookback = digest.DefaultLookback
	}
	if s.Tuning.Retention == 0 {
		s.Tuning.Retention = 7 * 24 * time.Hour
	}
	if s.Tuning.PerSourceLimit == 0 {
		s.Tuning.PerSourceLimit = 10
	}
	if s.Tuning.Dedup == "" {
		s.Tuning.Dedup = "category"
	}
	if s.Scoring.PositionBase == 0 {
		s.Scoring.PositionBase = news.DefaultPositionBase
	}
	if s.Scoring.DefaultWeight == 0 {
		s.Scoring.DefaultWeight = news.DefaultSourceWeight
	}
	if len(s.Keywords) == 0 {
		s.Keywords = news.DefaultKeywordSets()
	}
}

func (s *Sources) validate() error {
	if len(s.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if s.Tuning.TargetCount < 0 || s.Tuning.MaxPerSource < 0 || s.Tuning.PerSourceLimit < 0 {
		return fmt.Errorf("tuning values must not be negative")
	}
	if s.Tuning.Retention < s.Tuning.Lookback {
		return fmt.Errorf("retention %s is shorter than lookback %s", s.Tuning.Retention, s.Tuning.Lookback)
	}
	if _, err := s.dedupMode(); err != nil {
		return err
	}

	seen := make(map[news.Category]bool)
	for _, c := range s.Categories {
		cat, err := news.ParseCategory(c.Category)
		if err != nil {
			return err
		}
		if seen[cat] {
			return fmt.Errorf("category %q listed twice", c.Category)
		}
		seen[cat] = true
		for _, src := range c.Sources {
			if src.Name == "" || src.URL == "" {
				return fmt.Errorf("category %q: sources need a name and a url", c.Category)
			}
		}
	}
	return nil
}

func (s *Sources) dedupMode() (digest.DedupMode, error) {
	switch strings.ToLower(s.Tuning.Dedup) {
	case "category":
		return digest.DedupCategory, nil
	case "global":
		return digest.DedupGlobal, nil
	default:
		return 0, fmt.Errorf("dedup must be 'category' or 'global', got %q", s.Tuning.Dedup)
	}
}

// Options returns the engine options described by the tuning block.
func (s *Sources) Options() digest.Options {
	mode, _ := s.dedupMode()
	return digest.Options{
		TargetCount:  s.Tuning.TargetCount,
		MaxPerSource: s.Tuning.MaxPerSource,
		Lookback:     s.Tuning.Lookback,
		DedupMode:    mode,
	}
}

// Scorer builds an importance scorer from source weights and keyword sets.
// Sources without an explicit weight use the default weight.
func (s *Sources) Scorer() *news.Scorer {
	weights := make(map[string]int)
	for _, c := range s.Categories {
		for _, src := range c.Sources {
			if src.Weight != 0 {
				weights[src.Name] = src.Weight
			}
		}
	}
	return &news.Scorer{
		PositionBase:  s.Scoring.PositionBase,
		Weights:       weights,
		DefaultWeight: s.Scoring.DefaultWeight,
		Keywords:      s.Keywords,
	}
}

// DigestCategories returns the categories in file order with their sources
// tagged.
func (s *Sources) DigestCategories() []digest.CategorySources {
	out := make([]digest.CategorySources, 0, len(s.Categories))
	for _, c := range s.Categories {
		cat, _ := news.ParseCategory(c.Category)
		sources := make([]rss.Source, len(c.Sources))
		for i, src := range c.Sources {
			src.Category = cat
			sources[i] = src
		}
		out = append(out, digest.CategorySources{Category: cat, Title: c.Title, Sources: sources})
	}
	return out
}
