// Package digest selects, ranks and renders the entries of a news digest.
package digest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/news"
	"github.com/deusflow/newsdigest/internal/rss"
	"github.com/deusflow/newsdigest/internal/storage"
)

// DedupMode controls which earlier deliveries suppress an entry.
type DedupMode int

const (
	// DedupCategory suppresses entries sent under the same category only.
	DedupCategory DedupMode = iota
	// DedupGlobal suppresses entries sent under any category.
	DedupGlobal
)

const (
	DefaultTargetCount  = 5
	DefaultMaxPerSource = 3
	DefaultLookback     = 24 * time.Hour
)

type Options struct {
	TargetCount  int
	MaxPerSource int
	Lookback     time.Duration
	DedupMode    DedupMode
}

func DefaultOptions() Options {
	return Options{
		TargetCount:  DefaultTargetCount,
		MaxPerSource: DefaultMaxPerSource,
		Lookback:     DefaultLookback,
		DedupMode:    DedupCategory,
	}
}

func (o Options) withDefaults() Options {
	if o.TargetCount <= 0 {
		o.TargetCount = DefaultTargetCount
	}
	if o.MaxPerSource <= 0 {
		o.MaxPerSource = DefaultMaxPerSource
	}
	if o.Lookback <= 0 {
		o.Lookback = DefaultLookback
	}
	return o
}

// RecencyBonus maps an age to the bonus added on top of importance.
// Unknown ages get a neutral bonus so they stay eligible.
func RecencyBonus(age news.Age) int {
	if !age.Known() {
		return 10
	}
	switch d := age.Duration(); {
	case d <= time.Hour:
		return 30
	case d <= 6*time.Hour:
		return 20
	case d <= 24*time.Hour:
		return 10
	case d <= 72*time.Hour:
		return 5
	default:
		return 0
	}
}

// Fetcher is the pull side of a build.
type Fetcher interface {
	Fetch(ctx context.Context, sources []rss.Source, category news.Category, perSourceLimit int) []news.Entry
}

// Section is the outcome of one category build.
type Section struct {
	Category news.Category
	Entries  []news.Entry
	Fetched  int
	Starved  bool
}

// Engine runs category builds. It keeps no state between builds other than
// what it writes to Store.
type Engine struct {
	Store    storage.Store
	Fetcher  Fetcher
	Scorer   *news.Scorer
	Resolver *news.Resolver
	Options  Options
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewEngine(store storage.Store, fetcher Fetcher, scorer *news.Scorer, opts Options) *Engine {
	if scorer == nil {
		scorer = news.NewScorer(nil)
	}
	return &Engine{
		Store:    store,
		Fetcher:  fetcher,
		Scorer:   scorer,
		Resolver: news.NewResolver(),
		Options:  opts,
		Metrics:  metrics.Global,
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) scorer() *news.Scorer {
	if e.Scorer == nil {
		return news.NewScorer(nil)
	}
	return e.Scorer
}

func (e *Engine) resolver() *news.Resolver {
	if e.Resolver == nil {
		return news.NewResolver()
	}
	return e.Resolver
}

func (e *Engine) metrics() *metrics.Metrics {
	if e.Metrics == nil {
		return metrics.Global
	}
	return e.Metrics
}

// Build fetches the sources of one category and selects from them.
func (e *Engine) Build(ctx context.Context, category news.Category, sources []rss.Source, perSourceLimit int) Section {
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = log.With().Str("build_id", uuid.NewString()).Logger().WithContext(ctx)
	}

	var fetched []news.Entry
	if e.Fetcher != nil {
		fetched = e.Fetcher.Fetch(ctx, sources, category, perSourceLimit)
	}
	selected := e.Select(ctx, category, fetched)

	sec := Section{
		Category: category,
		Entries:  selected,
		Fetched:  len(fetched),
		Starved:  len(selected) < e.Options.withDefaults().TargetCount,
	}
	if sec.Starved {
		e.metrics().IncrementStarvedSections()
		zerolog.Ctx(ctx).Info().
			Str("category", string(category)).
			Int("fetched", sec.Fetched).
			Int("selected", len(selected)).
			Msg("Category starved")
	}
	return sec
}

// Select scores entries, drops those already delivered within the lookback
// window and picks a ranked, source-diverse subset. Every selected entry is
// committed to the store before returning.
func (e *Engine) Select(ctx context.Context, category news.Category, entries []news.Entry) []news.Entry {
	opts := e.Options.withDefaults()
	logger := loggerFrom(ctx).With().Str("category", string(category)).Logger()
	now := e.now()
	resolver, scorer := e.resolver(), e.scorer()

	candidates := make([]news.Entry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for _, entry := range entries {
		entry.Category = category
		entry.Age = resolver.Resolve(entry.PublishedRaw, now)
		entry.Importance = scorer.Score(entry, entry.Position)
		entry.TotalScore = float64(entry.Importance + RecencyBonus(entry.Age))
		entry.Fingerprint = news.Fingerprint(entry.Title, entry.Source)

		if i, dup := seen[entry.Fingerprint]; dup {
			if ranksBefore(entry, candidates[i]) {
				candidates[i] = entry
			}
			continue
		}
		if e.alreadySent(ctx, &logger, entry, opts) {
			e.metrics().IncrementDuplicates()
			continue
		}
		seen[entry.Fingerprint] = len(candidates)
		candidates = append(candidates, entry)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return ranksBefore(candidates[i], candidates[j])
	})

	selected := diversify(candidates, opts.TargetCount, opts.MaxPerSource)
	e.commit(ctx, &logger, selected)
	e.metrics().AddEntriesSelected(len(selected))

	logger.Debug().Int("candidates", len(candidates)).Int("selected", len(selected)).Msg("Selected entries")
	return selected
}

func (e *Engine) alreadySent(ctx context.Context, logger *zerolog.Logger, entry news.Entry, opts Options) bool {
	if e.Store == nil {
		return false
	}

	var (
		found bool
		err   error
	)
	if opts.DedupMode == DedupGlobal {
		found, err = e.Store.Lookup(ctx, entry.Fingerprint, opts.Lookback)
	} else {
		found, err = e.Store.LookupCategory(ctx, entry.Fingerprint, string(entry.Category), opts.Lookback)
	}
	if err != nil {
		e.metrics().IncrementStoreErrors()
		logger.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("Store lookup failed, treating as new")
		return false
	}
	return found
}

func (e *Engine) commit(ctx context.Context, logger *zerolog.Logger, selected []news.Entry) {
	if e.Store == nil {
		return
	}
	for _, entry := range selected {
		err := e.Store.Upsert(ctx, storage.Record{
			Fingerprint:   entry.Fingerprint,
			Title:         entry.Title,
			Source:        entry.Source,
			Category:      string(entry.Category),
			URL:           entry.Link,
			PublishedTime: entry.PublishedRaw,
		})
		if err != nil {
			e.metrics().IncrementStoreErrors()
			logger.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("Store upsert failed")
		}
	}
}

// ranksBefore orders by total score, then by younger age.
func ranksBefore(a, b news.Entry) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.Age.Younger(b.Age)
}

// diversify admits ranked entries while their source is under the cap, then
// backfills from the rest ignoring it. The result keeps ranked order.
func diversify(ranked []news.Entry, target, maxPerSource int) []news.Entry {
	chosen := make([]bool, len(ranked))
	perSource := make(map[string]int)
	count := 0

	for i, entry := range ranked {
		if count == target {
			break
		}
		if perSource[entry.Source] < maxPerSource {
			chosen[i] = true
			perSource[entry.Source]++
			count++
		}
	}
	for i := range ranked {
		if count == target {
			break
		}
		if !chosen[i] {
			chosen[i] = true
			count++
		}
	}

	out := make([]news.Entry, 0, count)
	for i, entry := range ranked {
		if chosen[i] {
			out = append(out, entry)
		}
	}
	return out
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
