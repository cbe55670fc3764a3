package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const defaultSQLitePath = "data/newsdigest.db"

// NewSQLite opens (and creates) a sqlite database at path in WAL mode.
func NewSQLite(path string, opts ...Option) (Backend, error) {
	if path == "" {
		path = defaultSQLitePath
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}
		dsn = fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps commits serialized
	db.SetMaxOpenConns(1)

	st, err := newSQLStore(db, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}
