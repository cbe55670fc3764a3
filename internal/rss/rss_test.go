package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdigest/internal/cache"
	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/news"
)

func rssDoc(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`)
	for i, title := range titles {
		fmt.Fprintf(&b, `<item><title>%s</title><link>https://example.com/%d</link><pubDate>Mon, 10 Mar 2025 10:0%d:00 +0000</pubDate></item>`, title, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newTestFetcher() *Fetcher {
	f := NewFetcher(NewGofeedSource("newsdigest-test"), nil, nil)
	f.Metrics = metrics.New()
	f.Timeout = 2 * time.Second
	return f
}

func TestFetchIsolatesFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssDoc("Alpha one", "  ", "Alpha &amp; two", "Alpha three"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssDoc("Gamma one"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher()
	sources := []Source{
		{Name: "A", URL: srv.URL + "/a"},
		{Name: "B", URL: srv.URL + "/b"},
		{Name: "C", URL: srv.URL + "/c"},
	}

	entries := f.Fetch(context.Background(), sources, news.CategoryTech, 2)
	require.Len(t, entries, 3)

	assert.Equal(t, "Alpha one", entries[0].Title)
	assert.Equal(t, "Alpha & two", entries[1].Title, "blank titles are skipped and entities decoded")
	assert.Equal(t, 1, entries[1].Position)
	assert.Equal(t, "Gamma one", entries[2].Title)
	assert.Equal(t, 0, entries[2].Position)
	for _, e := range entries {
		assert.Equal(t, news.CategoryTech, e.Category)
		assert.NotEmpty(t, e.PublishedRaw)
	}

	stats := f.Metrics.GetStats()
	assert.Equal(t, int64(1), stats["source_failures"])
	assert.Equal(t, int64(3), stats["entries_fetched"])
}

func TestFetchSlowSourceTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssDoc("Fast news"))
	}))
	defer fast.Close()

	f := newTestFetcher()
	f.Timeout = 100 * time.Millisecond

	start := time.Now()
	entries := f.Fetch(context.Background(), []Source{
		{Name: "slow", URL: slow.URL},
		{Name: "fast", URL: fast.URL},
	}, news.CategoryLocal, 5)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, entries, 1)
	assert.Equal(t, "fast", entries[0].Source)
}

type countingSource struct {
	calls atomic.Int32
	feed  *gofeed.Feed
	err   error
}

func (c *countingSource) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	c.calls.Add(1)
	return c.feed, c.err
}

func TestFetchUsesFeedCache(t *testing.T) {
	src := &countingSource{feed: &gofeed.Feed{Items: []*gofeed.Item{
		{Title: "Cached", Updated: "2025-03-10T10:00:00Z"},
	}}}
	feedCache := cache.New[*gofeed.Feed](time.Minute, 0)
	defer feedCache.Close()

	f := NewFetcher(src, feedCache, nil)
	f.Metrics = metrics.New()
	sources := []Source{{Name: "X", URL: "https://x.example/rss"}}

	first := f.Fetch(context.Background(), sources, news.CategoryGlobal, 5)
	second := f.Fetch(context.Background(), sources, news.CategoryGlobal, 5)

	assert.Equal(t, int32(1), src.calls.Load())
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, "2025-03-10T10:00:00Z", first[0].PublishedRaw, "falls back to Updated")
}

func TestFetchEmptyAndErrorFeeds(t *testing.T) {
	f := NewFetcher(&countingSource{feed: &gofeed.Feed{}}, nil, nil)
	f.Metrics = metrics.New()
	assert.Empty(t, f.Fetch(context.Background(), []Source{{Name: "E", URL: "https://e.example"}}, news.CategorySports, 5))

	f.Source = &countingSource{err: errors.New("dns failure")}
	assert.Empty(t, f.Fetch(context.Background(), []Source{{Name: "E", URL: "https://e.example"}}, news.CategorySports, 5))
	assert.Equal(t, int64(2), f.Metrics.GetStats()["source_failures"])
}
