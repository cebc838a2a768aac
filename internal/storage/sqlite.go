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
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
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

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_log (
  execution_ref        TEXT PRIMARY KEY,
  connector            TEXT NOT NULL,
  decision_type        TEXT NOT NULL,
  inputs_hash          TEXT NOT NULL,
  event_type           TEXT,
  outputs              JSON NOT NULL,
  confidence_score     REAL NOT NULL,
  auth_assurance       TEXT NOT NULL,
  payload_completeness REAL NOT NULL,
  schema_validation    INTEGER NOT NULL,
  constraints_applied  JSON NOT NULL,
  path                 TEXT NOT NULL,
  content_type         TEXT,
  source_ip_hash       TEXT,
  received_at          TEXT NOT NULL,
  signature_valid      INTEGER NOT NULL,
  schema_valid         INTEGER NOT NULL,
  error_count          INTEGER NOT NULL DEFAULT 0,
  decided_at           TEXT NOT NULL,
  created_at           TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS decision_log_connector_created_at_idx ON decision_log(connector, created_at);`,
		`CREATE INDEX IF NOT EXISTS decision_log_inputs_hash_idx ON decision_log(inputs_hash);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
