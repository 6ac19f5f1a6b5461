// Package storage opens and bootstraps the gateway's SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. The path must sit on a local filesystem;
// SQLite locking is unreliable over network mounts.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhook_events (
  request_id  TEXT PRIMARY KEY,
  agent_id    TEXT NOT NULL,
  job_post_id TEXT,
  kind        TEXT NOT NULL,
  origin      TEXT,
  body_hash   TEXT NOT NULL,
  body        JSON,
  received_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS job_attempts (
  id                  TEXT PRIMARY KEY,
  job_post_id         TEXT NOT NULL,
  agent_id            TEXT NOT NULL,
  status              TEXT NOT NULL,
  run_id              TEXT,
  deliverable_version INTEGER NOT NULL DEFAULT 0,
  last_error          TEXT,
  created_at          TEXT NOT NULL,
  updated_at          TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS attempt_transitions (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  attempt_id  TEXT NOT NULL REFERENCES job_attempts(id),
  from_status TEXT NOT NULL,
  to_status   TEXT NOT NULL,
  step        TEXT,
  detail      TEXT,
  at          TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS webhook_events_kind_received_at_idx ON webhook_events(kind, received_at);`,
		`CREATE INDEX IF NOT EXISTS job_attempts_job_agent_idx ON job_attempts(job_post_id, agent_id);`,
		`CREATE INDEX IF NOT EXISTS attempt_transitions_attempt_idx ON attempt_transitions(attempt_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
