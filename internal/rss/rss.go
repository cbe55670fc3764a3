// Package rss fetches entries for a category from its configured feeds.
package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsdigest/internal/cache"
	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/news"
	"github.com/deusflow/newsdigest/internal/ratelimit"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultConcurrency = 6
)

// Source is one configured feed.
type Source struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Category news.Category `yaml:"-"`
	Weight   int           `yaml:"weight"`
}

// FeedSource downloads and parses a single feed.
type FeedSource interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

type gofeedSource struct {
	parser *gofeed.Parser
}

func (g gofeedSource) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	return g.parser.ParseURLWithContext(url, ctx)
}

// NewGofeedSource returns the default HTTP feed source.
func NewGofeedSource(userAgent string) FeedSource {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	return gofeedSource{parser: p}
}

type Fetcher struct {
	Source      FeedSource
	Cache       *cache.Cache[*gofeed.Feed] // optional
	Limiter     *ratelimit.DomainLimiter   // optional
	Timeout     time.Duration
	Concurrency int
	Metrics     *metrics.Metrics
}

func NewFetcher(src FeedSource, feedCache *cache.Cache[*gofeed.Feed], limiter *ratelimit.DomainLimiter) *Fetcher {
	return &Fetcher{
		Source:      src,
		Cache:       feedCache,
		Limiter:     limiter,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Metrics:     metrics.Global,
	}
}

// Fetch pulls every source concurrently. A failing source contributes no
// entries and never fails the batch. Entries come back in source order, then
// feed order, with Position counting from 0 within each source.
func (f *Fetcher) Fetch(ctx context.Context, sources []Source, category news.Category, perSourceLimit int) []news.Entry {
	m := f.Metrics
	if m == nil {
		m = metrics.Global
	}
	results := make([][]news.Entry, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(max(1, f.Concurrency))

	for i, src := range sources {
		g.Go(func() error {
			entries, err := f.fetchOne(ctx, src, category, perSourceLimit)
			if err != nil {
				log.Warn().Err(err).Str("source", src.Name).Str("category", string(category)).Msg("Source unavailable")
				m.IncrementSourceFailures()
				return nil
			}
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait()

	var all []news.Entry
	for _, entries := range results {
		all = append(all, entries...)
	}
	m.AddEntriesFetched(len(all))

	log.Debug().Str("category", string(category)).Int("sources", len(sources)).Int("entries", len(all)).Msg("Fetched category")
	return all
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source, category news.Category, limit int) ([]news.Entry, error) {
	feed, err := f.feed(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	if feed == nil || len(feed.Items) == 0 {
		return nil, fmt.Errorf("feed %s is empty", src.URL)
	}

	var entries []news.Entry
	for _, item := range feed.Items {
		if limit > 0 && len(entries) >= limit {
			break
		}
		if item == nil {
			continue
		}
		title := news.CleanTitle(item.Title, news.TitleMaxRunes)
		if title == "" {
			continue
		}
		entries = append(entries, news.Entry{
			Title:        title,
			Link:         strings.TrimSpace(item.Link),
			Source:       src.Name,
			Category:     category,
			PublishedRaw: rawTime(item),
			Position:     len(entries),
		})
	}
	return entries, nil
}

func (f *Fetcher) feed(ctx context.Context, url string) (*gofeed.Feed, error) {
	if f.Cache != nil {
		if feed, ok := f.Cache.Get(url); ok {
			return feed, nil
		}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := f.Limiter.Wait(ctx, url); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	feed, err := f.Source.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if f.Cache != nil && feed != nil {
		f.Cache.Set(url, feed)
	}
	return feed, nil
}

func rawTime(item *gofeed.Item) string {
	if s := strings.TrimSpace(item.Published); s != "" {
		return s
	}
	return strings.TrimSpace(item.Updated)
}
