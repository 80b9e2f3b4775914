// Package sqlite provides the "sqlite" store.Driver: a single-file database
// accessed through database/sql with OTEL instrumentation via otelsql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auction_snapshots (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		run_id   TEXT NOT NULL,
		data     TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auction_results (
		id           INTEGER PRIMARY KEY CHECK (id = 1),
		run_id       TEXT NOT NULL,
		data         TEXT NOT NULL,
		generated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id           TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		type         TEXT NOT NULL,
		data         TEXT NOT NULL,
		version      INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		UNIQUE (aggregate_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events (type)`,
}

func init() {
	store.Register("sqlite", open)
}

// open is the store.Driver for the "sqlite" backend.
func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Snapshots: NewSnapshotRepo(db, clk),
		Results:   NewResultsRepo(db),
		Events:    NewEventStore(db, clk),
		Closer:    db,
		Ping:      db.PingContext,
	}, nil
}

// Connect opens the database file at path, creating it and its schema when
// missing.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time; the bot is the only client.
	db.SetMaxOpenConns(1)

	for _, stmt := range append([]string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("preparing sqlite database: %w", err)
		}
	}

	return db, nil
}
