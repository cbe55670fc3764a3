package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NewPostgres connects to PostgreSQL and bootstraps the schema.
func NewPostgres(connectionString string, opts ...Option) (Backend, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("postgres store needs a connection string")
	}

	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(5)

	st, err := newSQLStore(db, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}
