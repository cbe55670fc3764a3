package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const defaultFilePath = "data/sent_entries.json"

type fileData struct {
	Entries     []Record `json:"entries"`
	Subscribers []int64  `json:"subscribers"`
}

// FileStore keeps everything in memory and rewrites a JSON file after
// every change. Suitable for a single process.
type FileStore struct {
	filePath    string
	now         func() time.Time
	mu          sync.RWMutex
	items       map[string]map[string]Record // fingerprint -> category
	subscribers map[int64]time.Time
}

func NewFileStore(filePath string, opts ...Option) (*FileStore, error) {
	if filePath == "" {
		filePath = defaultFilePath
	}
	o := buildOptions(opts)

	fs := &FileStore{
		filePath:    filePath,
		now:         o.now,
		items:       make(map[string]map[string]Record),
		subscribers: make(map[int64]time.Time),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw fileData
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal store file: %w", err)
	}

	for _, rec := range raw.Entries {
		fs.put(rec)
	}
	for i, id := range raw.Subscribers {
		fs.subscribers[id] = time.Unix(int64(i), 0)
	}
	return nil
}

// save must be called with fs.mu held.
func (fs *FileStore) save() error {
	out := fileData{
		Entries:     make([]Record, 0, len(fs.items)),
		Subscribers: fs.subscriberIDs(),
	}
	for _, byCategory := range fs.items {
		for _, rec := range byCategory {
			out.Entries = append(out.Entries, rec)
		}
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		a, b := out.Entries[i], out.Entries[j]
		if a.Fingerprint != b.Fingerprint {
			return a.Fingerprint < b.Fingerprint
		}
		return a.Category < b.Category
	})

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if dir := filepath.Dir(fs.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp, fs.filePath)
}

// put must be called with fs.mu held.
func (fs *FileStore) put(rec Record) {
	byCategory, ok := fs.items[rec.Fingerprint]
	if !ok {
		byCategory = make(map[string]Record)
		fs.items[rec.Fingerprint] = byCategory
	}
	byCategory[rec.Category] = rec
}

func (fs *FileStore) fresh(rec Record, lookback time.Duration) bool {
	return rec.SentAt.After(fs.now().Add(-lookback))
}

func (fs *FileStore) Lookup(_ context.Context, fingerprint string, lookback time.Duration) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, rec := range fs.items[fingerprint] {
		if fs.fresh(rec, lookback) {
			return true, nil
		}
	}
	return false, nil
}

func (fs *FileStore) LookupCategory(_ context.Context, fingerprint, category string, lookback time.Duration) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, ok := fs.items[fingerprint][category]
	return ok && fs.fresh(rec, lookback), nil
}

func (fs *FileStore) Upsert(_ context.Context, rec Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec.SentAt = fs.now()
	fs.put(rec)
	return fs.save()
}

func (fs *FileStore) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var removed int64
	for fp, byCategory := range fs.items {
		for category, rec := range byCategory {
			if rec.SentAt.Before(olderThan) {
				delete(byCategory, category)
				removed++
			}
		}
		if len(byCategory) == 0 {
			delete(fs.items, fp)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, fs.save()
}

func (fs *FileStore) Get(_ context.Context, fingerprint string) (*Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var latest *Record
	for _, rec := range fs.items[fingerprint] {
		if latest == nil || rec.SentAt.After(latest.SentAt) ||
			(rec.SentAt.Equal(latest.SentAt) && rec.Category < latest.Category) {
			rec := rec
			latest = &rec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (fs *FileStore) Stats(_ context.Context) (Stats, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := Stats{
		Subscribers: len(fs.subscribers),
		ByCategory:  make(map[string]int),
	}
	for _, byCategory := range fs.items {
		for category := range byCategory {
			stats.Total++
			stats.ByCategory[category]++
		}
	}
	return stats, nil
}

func (fs *FileStore) Subscribe(_ context.Context, chatID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.subscribers[chatID]; ok {
		return nil
	}
	fs.subscribers[chatID] = fs.now()
	return fs.save()
}

func (fs *FileStore) Unsubscribe(_ context.Context, chatID int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.subscribers[chatID]; !ok {
		return nil
	}
	delete(fs.subscribers, chatID)
	return fs.save()
}

func (fs *FileStore) Subscribers(_ context.Context) ([]int64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.subscriberIDs(), nil
}

func (fs *FileStore) subscriberIDs() []int64 {
	ids := make([]int64, 0, len(fs.subscribers))
	for id := range fs.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := fs.subscribers[ids[i]], fs.subscribers[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (fs *FileStore) Close() error {
	return nil
}
