package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func backends(t *testing.T, clock *fakeClock) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := Open("sqlite", filepath.Join(dir, "test.db"), WithClock(clock.now))
	require.NoError(t, err)
	file, err := Open("file", filepath.Join(dir, "sent.json"), WithClock(clock.now))
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlite.Close()
		file.Close()
	})
	return map[string]Backend{"sqlite": sqlite, "file": file}
}

func record(fp, category string) Record {
	return Record{
		Fingerprint:   fp,
		Title:         "Title " + fp,
		Source:        "DR",
		Category:      category,
		URL:           "https://dr.dk/" + fp,
		PublishedTime: "Mon, 10 Mar 2025 10:00:00 +0000",
	}
}

func TestLookupWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	for name, st := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			fp := "fp-window-" + name
			found, err := st.Lookup(ctx, fp, 24*time.Hour)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, st.Upsert(ctx, record(fp, "local")))

			found, err = st.Lookup(ctx, fp, 24*time.Hour)
			require.NoError(t, err)
			assert.True(t, found)

			found, err = st.LookupCategory(ctx, fp, "local", 24*time.Hour)
			require.NoError(t, err)
			assert.True(t, found)

			found, err = st.LookupCategory(ctx, fp, "tech", 24*time.Hour)
			require.NoError(t, err)
			assert.False(t, found)

			clock.advance(time.Minute)
			found, err = st.Lookup(ctx, fp, 30*time.Second)
			require.NoError(t, err)
			assert.False(t, found, "lookback shorter than the record age")
		})
	}
}

func TestUpsertOverwritesSamePair(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}

	for name, st := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			clock.t = start
			fp := "fp-upsert-" + name
			require.NoError(t, st.Upsert(ctx, record(fp, "local")))

			clock.advance(2 * time.Hour)
			rec := record(fp, "local")
			rec.Title = "Updated"
			require.NoError(t, st.Upsert(ctx, rec))

			got, err := st.Get(ctx, fp)
			require.NoError(t, err)
			assert.Equal(t, "Updated", got.Title)
			assert.Equal(t, "local", got.Category)
			assert.True(t, got.SentAt.Equal(start.Add(2*time.Hour)), "sent_at refreshed, got %v", got.SentAt)

			stats, err := st.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.ByCategory["local"])

			_, err = st.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCategoriesKeepSeparateRecords(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	lookback := 24 * time.Hour

	for name, st := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			clock.t = start
			fp := "fp-shared-" + name
			require.NoError(t, st.Upsert(ctx, record(fp, "tech")))
			clock.advance(time.Hour)
			require.NoError(t, st.Upsert(ctx, record(fp, "global")))
			clock.advance(time.Hour)

			found, err := st.LookupCategory(ctx, fp, "tech", lookback)
			require.NoError(t, err)
			assert.True(t, found, "tech record survives a later global send")

			found, err = st.LookupCategory(ctx, fp, "global", lookback)
			require.NoError(t, err)
			assert.True(t, found)

			found, err = st.LookupCategory(ctx, fp, "sports", lookback)
			require.NoError(t, err)
			assert.False(t, found)

			found, err = st.Lookup(ctx, fp, 90*time.Minute)
			require.NoError(t, err)
			assert.True(t, found, "any category within the window matches")

			got, err := st.Get(ctx, fp)
			require.NoError(t, err)
			assert.Equal(t, "global", got.Category, "latest record")

			removed, err := st.Purge(ctx, start.Add(30*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			found, err = st.LookupCategory(ctx, fp, "tech", lookback)
			require.NoError(t, err)
			assert.False(t, found)
			found, err = st.LookupCategory(ctx, fp, "global", lookback)
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestPurgeRetention(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	retention := 7 * 24 * time.Hour

	for name, st := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			clock.t = start
			require.NoError(t, st.Upsert(ctx, record("old", "local")))
			clock.advance(6 * 24 * time.Hour)
			require.NoError(t, st.Upsert(ctx, record("recent", "local")))
			clock.advance(2 * 24 * time.Hour)

			removed, err := st.Purge(ctx, clock.now().Add(-retention))
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			_, err = st.Get(ctx, "old")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = st.Get(ctx, "recent")
			assert.NoError(t, err)
		})
	}
}

func TestStatsAndSubscribers(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	for name, st := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Upsert(ctx, record("a", "local")))
			require.NoError(t, st.Upsert(ctx, record("b", "local")))
			require.NoError(t, st.Upsert(ctx, record("c", "tech")))

			require.NoError(t, st.Subscribe(ctx, 42))
			clock.advance(time.Second)
			require.NoError(t, st.Subscribe(ctx, 7))
			require.NoError(t, st.Subscribe(ctx, 42))

			ids, err := st.Subscribers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{42, 7}, ids)

			stats, err := st.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Total)
			assert.Equal(t, 2, stats.Subscribers)
			assert.Equal(t, 2, stats.ByCategory["local"])
			assert.Equal(t, 1, stats.ByCategory["tech"])

			require.NoError(t, st.Unsubscribe(ctx, 42))
			ids, err = st.Subscribers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{7}, ids)
		})
	}
}

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sent.json")
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	fs, err := NewFileStore(path, WithClock(clock.now))
	require.NoError(t, err)
	require.NoError(t, fs.Upsert(ctx, record("persisted", "sports")))
	require.NoError(t, fs.Upsert(ctx, record("persisted", "local")))
	require.NoError(t, fs.Subscribe(ctx, 99))

	reopened, err := NewFileStore(path, WithClock(clock.now))
	require.NoError(t, err)

	for _, category := range []string{"sports", "local"} {
		found, err := reopened.LookupCategory(ctx, "persisted", category, time.Hour)
		require.NoError(t, err)
		assert.True(t, found, category)
	}

	ids, err := reopened.Subscribers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, ids)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", "")
	assert.Error(t, err)
}
