// Package persistence is the C10 persistence gateway: it owns the
// wine_label_submissions, label_generations, label_generation_steps, and
// label_assets tables behind narrow, transactional operations. The
// orchestrator (C8) and image store (C4) never touch *sql.DB directly.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Gateway owns the SQLite connection and the generation-domain schema.
// Grounded on the teacher's internal/store.Store: single-connection
// SQLite, WAL mode, idempotent CREATE TABLE IF NOT EXISTS migrations run
// on Open.
type Gateway struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and applies
// the schema.
func Open(path string) (*Gateway, error) {
	if path == "" {
		return nil, fmt.Errorf("persistence: db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	g := &Gateway{db: db}
	if err := g.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the underlying connection.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// DB exposes the raw connection for callers that need to compose
// transactions across gateway operations (e.g. the orchestrator's
// claim-then-execute sequence does not need this; provided for tests).
func (g *Gateway) DB() *sql.DB {
	return g.db
}

func (g *Gateway) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS wine_label_submissions (
			id TEXT PRIMARY KEY,
			producer_name TEXT NOT NULL,
			wine_name TEXT NOT NULL,
			vintage TEXT NOT NULL,
			variety TEXT NOT NULL,
			region TEXT NOT NULL,
			appellation TEXT NOT NULL,
			style TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS label_generations (
			id TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL,
			status TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT '',
			design_scheme TEXT,
			description TEXT,
			preview_url TEXT,
			preview_width INTEGER,
			preview_height INTEGER,
			preview_format TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_label_generations_submission ON label_generations(submission_id);`,
		`CREATE TABLE IF NOT EXISTS label_generation_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generation_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			started_at TEXT,
			completed_at TEXT,
			input TEXT,
			output TEXT,
			error TEXT,
			UNIQUE(generation_id, step)
		);`,
		`CREATE TABLE IF NOT EXISTS label_assets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generation_id TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			url TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			format TEXT NOT NULL,
			checksum TEXT NOT NULL,
			prompt TEXT,
			model TEXT,
			seed INTEGER,
			UNIQUE(generation_id, asset_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_label_assets_checksum ON label_assets(checksum);`,
	}
	for _, stmt := range stmts {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("persistence: migrate: %w", err)
		}
	}
	return nil
}
