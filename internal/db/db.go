// Package db is the SQLite event log behind session history and analytics.
package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// PathIn returns the database path under the state home directory.
func PathIn(home string) string {
	return filepath.Join(home, "sitefactory.db")
}

// Open opens or creates the database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS session_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    event       TEXT NOT NULL CHECK(event IN ('created','started','attempt','stopped','completed','failed','paused','interrupted')),
    detail      TEXT,
    timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_session_events ON session_events(session_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS attempt_runs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL,
    website_id    TEXT NOT NULL,
    idx           INTEGER NOT NULL,
    industry      TEXT NOT NULL,
    template      TEXT NOT NULL,
    overall_score REAL NOT NULL,
    verdict       TEXT NOT NULL,
    success       BOOLEAN NOT NULL,
    commands      INTEGER NOT NULL,
    failed        INTEGER NOT NULL,
    duration_ms   INTEGER,
    error         TEXT,
    timestamp     TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_attempt_session ON attempt_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_attempt_industry ON attempt_runs(industry, template);

CREATE TABLE IF NOT EXISTS command_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    website_id  TEXT NOT NULL,
    command_id  TEXT NOT NULL,
    action      TEXT NOT NULL,
    status      TEXT NOT NULL CHECK(status IN ('success','failed','skipped')),
    attempt     INTEGER NOT NULL,
    duration_ms INTEGER,
    error       TEXT,
    timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_command_action ON command_log(action, status);

CREATE TABLE IF NOT EXISTS command_failures (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    failure_id        TEXT NOT NULL,
    session_id        TEXT NOT NULL,
    website_id        TEXT NOT NULL,
    command_id        TEXT NOT NULL,
    step              TEXT NOT NULL,
    error_type        TEXT NOT NULL,
    message           TEXT,
    recovery_attempts INTEGER NOT NULL DEFAULT 0,
    resolved          BOOLEAN NOT NULL DEFAULT FALSE,
    timestamp         TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_failure_step ON command_failures(step, error_type);
`

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"command_failures", "command_log", "attempt_runs", "session_events", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
