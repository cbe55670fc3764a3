package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdigest/internal/digest"
	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/news"
	"github.com/deusflow/newsdigest/internal/ratelimit"
	"github.com/deusflow/newsdigest/internal/rss"
	"github.com/deusflow/newsdigest/internal/storage"
)

var refNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type oneFeed struct{}

func (oneFeed) Fetch(_ context.Context, _ []rss.Source, category news.Category, _ int) []news.Entry {
	return []news.Entry{{Title: "Harbour reopens", Source: "DR", Category: category, PublishedRaw: "2025-03-10T11:00:00Z"}}
}

type chatSender struct {
	fail map[int64]bool
	sent map[int64]string
}

func (c *chatSender) Send(_ context.Context, chatID int64, text string) error {
	if c.fail[chatID] {
		return errors.New("blocked")
	}
	c.sent[chatID] = text
	return nil
}

func testApp(t *testing.T) *App {
	t.Helper()
	now := func() time.Time { return refNow }
	store, err := storage.Open("file", filepath.Join(t.TempDir(), "store.json"), storage.WithClock(func() time.Time { return refNow }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := digest.NewEngine(store, oneFeed{}, nil, digest.Options{TargetCount: 3})
	engine.Now = now
	engine.Metrics = metrics.New()

	return &App{
		Store: store,
		Digest: &digest.Digest{Engine: engine, Categories: []digest.CategorySources{
			{Category: news.CategoryLocal, Sources: []rss.Source{{Name: "DR"}}},
		}},
		Retention: 7 * 24 * time.Hour,
		Now:       now,
	}
}

func TestDeliverWithoutSubscribersSkipsBuild(t *testing.T) {
	a := testApp(t)
	sender := &chatSender{sent: map[int64]string{}}

	n, err := a.Deliver(context.Background(), sender)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := a.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total, "nothing is marked as sent")
}

func TestDeliverToSubscribers(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	require.NoError(t, a.Store.Subscribe(ctx, 1))
	require.NoError(t, a.Store.Subscribe(ctx, 2))
	sender := &chatSender{sent: map[int64]string{}, fail: map[int64]bool{2: true}}

	n, err := a.Deliver(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, sender.sent[1], "Harbour reopens")

	again, err := a.Deliver(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, 1, again)
	assert.Contains(t, sender.sent[1], digest.EmptyPlaceholder, "already sent story is not repeated")
}

func TestPurgeUsesRetention(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	require.NoError(t, a.Store.Upsert(ctx, storage.Record{Fingerprint: "old", Category: "local"}))

	a.Now = func() time.Time { return refNow.Add(8 * 24 * time.Hour) }
	removed, err := a.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMonitoringHandler(t *testing.T) {
	m := metrics.New()
	a := testApp(t)
	h := MonitoringHandler(m, a.Store, ratelimit.NewDomainLimiter(time.Second, 1))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	m.SetError("feeds down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "rate_limiter")
	assert.Contains(t, body, "store_entries")
	assert.Equal(t, "feeds down", body["last_error"])
}
