package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS sent_entries (
	fingerprint    VARCHAR(64) NOT NULL,
	category       VARCHAR(32) NOT NULL,
	title          TEXT NOT NULL,
	source         TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	published_time TEXT NOT NULL DEFAULT '',
	sent_at        BIGINT NOT NULL,
	PRIMARY KEY (fingerprint, category)
);

CREATE INDEX IF NOT EXISTS idx_sent_entries_sent_at ON sent_entries(sent_at);

CREATE TABLE IF NOT EXISTS subscribers (
	chat_id    BIGINT PRIMARY KEY,
	created_at BIGINT NOT NULL
);
`

// sqlStore implements Backend on any sqlx driver. Timestamps are stored as
// unix nanoseconds so that sqlite and postgres compare them the same way.
type sqlStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type recordRow struct {
	Record
	SentAtUnix int64 `db:"sent_at"`
}

func newSQLStore(db *sqlx.DB, opts []Option) (*sqlStore, error) {
	o := buildOptions(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("driver", db.DriverName()).Msg("Fingerprint store ready")
	return &sqlStore{db: db, now: o.now}, nil
}

func (s *sqlStore) cutoff(lookback time.Duration) int64 {
	return s.now().Add(-lookback).UnixNano()
}

func (s *sqlStore) Lookup(ctx context.Context, fingerprint string, lookback time.Duration) (bool, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM sent_entries WHERE fingerprint = ? AND sent_at > ?`)
	if err := s.db.GetContext(ctx, &count, query, fingerprint, s.cutoff(lookback)); err != nil {
		return false, fmt.Errorf("lookup %s: %w", fingerprint, err)
	}
	return count > 0, nil
}

func (s *sqlStore) LookupCategory(ctx context.Context, fingerprint, category string, lookback time.Duration) (bool, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM sent_entries WHERE fingerprint = ? AND category = ? AND sent_at > ?`)
	if err := s.db.GetContext(ctx, &count, query, fingerprint, category, s.cutoff(lookback)); err != nil {
		return false, fmt.Errorf("lookup %s/%s: %w", category, fingerprint, err)
	}
	return count > 0, nil
}

func (s *sqlStore) Upsert(ctx context.Context, rec Record) error {
	query := s.db.Rebind(`
		INSERT INTO sent_entries (fingerprint, title, source, category, url, published_time, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint, category) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			url = excluded.url,
			published_time = excluded.published_time,
			sent_at = excluded.sent_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		rec.Fingerprint, rec.Title, rec.Source, rec.Category, rec.URL, rec.PublishedTime,
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", rec.Category, rec.Fingerprint, err)
	}
	return nil
}

func (s *sqlStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sent_entries WHERE sent_at < ?`), olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		log.Info().Int64("removed", rows).Msg("Purged old fingerprints")
	}
	return rows, nil
}

func (s *sqlStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	var row recordRow
	query := s.db.Rebind(`
		SELECT fingerprint, title, source, category, url, published_time, sent_at
		FROM sent_entries WHERE fingerprint = ?
		ORDER BY sent_at DESC, category
		LIMIT 1
	`)
	if err := s.db.GetContext(ctx, &row, query, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", fingerprint, err)
	}

	rec := row.Record
	rec.SentAt = time.Unix(0, row.SentAtUnix).UTC()
	return &rec, nil
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByCategory: make(map[string]int)}

	if err := s.db.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM sent_entries`); err != nil {
		return stats, fmt.Errorf("count entries: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.Subscribers, `SELECT COUNT(*) FROM subscribers`); err != nil {
		return stats, fmt.Errorf("count subscribers: %w", err)
	}

	var counts []struct {
		Category string `db:"category"`
		Count    int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, `SELECT category, COUNT(*) AS n FROM sent_entries GROUP BY category`); err != nil {
		return stats, fmt.Errorf("count categories: %w", err)
	}
	for _, c := range counts {
		stats.ByCategory[c.Category] = c.Count
	}
	return stats, nil
}

func (s *sqlStore) Subscribe(ctx context.Context, chatID int64) error {
	query := s.db.Rebind(`INSERT INTO subscribers (chat_id, created_at) VALUES (?, ?) ON CONFLICT (chat_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, chatID, s.now().UnixNano()); err != nil {
		return fmt.Errorf("subscribe %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlStore) Unsubscribe(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM subscribers WHERE chat_id = ?`), chatID); err != nil {
		return fmt.Errorf("unsubscribe %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlStore) Subscribers(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT chat_id FROM subscribers ORDER BY created_at, chat_id`); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return ids, nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
