// Package storage persists the fingerprints of delivered entries and the
// list of subscribed chats.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Record is one delivery of an entry under a category. A fingerprint sent
// under several categories has one record per category. Title, Source and
// URL are kept for auditing only.
type Record struct {
	Fingerprint   string    `json:"fingerprint" db:"fingerprint"`
	Title         string    `json:"title" db:"title"`
	Source        string    `json:"source" db:"source"`
	Category      string    `json:"category" db:"category"`
	URL           string    `json:"url" db:"url"`
	PublishedTime string    `json:"published_time" db:"published_time"`
	SentAt        time.Time `json:"sent_at" db:"-"`
}

type Stats struct {
	Total       int
	Subscribers int
	ByCategory  map[string]int
}

// Store is the fingerprint store used by the digest engine. Records are
// keyed by fingerprint and category: Lookup matches any category while
// LookupCategory matches the exact pair. Upsert replaces the record of the
// same pair and always stamps SentAt with the store's clock, ignoring the
// value passed in. Get returns the most recently sent record.
type Store interface {
	Lookup(ctx context.Context, fingerprint string, lookback time.Duration) (bool, error)
	LookupCategory(ctx context.Context, fingerprint, category string, lookback time.Duration) (bool, error)
	Upsert(ctx context.Context, rec Record) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
	Get(ctx context.Context, fingerprint string) (*Record, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type SubscriberStore interface {
	Subscribe(ctx context.Context, chatID int64) error
	Unsubscribe(ctx context.Context, chatID int64) error
	Subscribers(ctx context.Context) ([]int64, error)
}

// Backend is what Open returns: both stores behind one handle.
type Backend interface {
	Store
	SubscriberStore
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open selects a backend by driver name: sqlite, postgres or file.
func Open(driver, dsn string, opts ...Option) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return NewSQLite(dsn, opts...)
	case "postgres", "postgresql":
		return NewPostgres(dsn, opts...)
	case "file", "json":
		fs, err := NewFileStore(dsn, opts...)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
