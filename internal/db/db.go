// Package db provides SQLite persistence for benchmark results.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the results database handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the results database at path.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	return open(dsn)
}

// OpenInMemory opens an in-memory results database, used by tests.
func OpenInMemory() (*DB, error) {
	return open(":memory:")
}

func open(dsn string) (*DB, error) {
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	if err := handle.Ping(); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to connect to results database: %w", err)
	}

	db := &DB{DB: handle}
	if err := db.ensureSchema(context.Background()); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS perf_runs (
			id TEXT PRIMARY KEY,
			perftest_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS perf_builds (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES perf_runs(id),
			revision TEXT NOT NULL,
			side TEXT NOT NULL,
			cache_mode TEXT NOT NULL,
			clean INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			cache_counts_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_builds_run ON perf_builds(run_id)`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply results schema: %w", err)
		}
	}
	return nil
}
