// Package sqlite implements the schedule, history, action and cluster stores
// on a single SQLite database.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS clusters (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	api_url       TEXT NOT NULL,
	username      TEXT NOT NULL,
	sealed_secret BLOB NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	cluster_id        TEXT NOT NULL REFERENCES clusters(id),
	node              TEXT NOT NULL,
	vmid              INTEGER NOT NULL,
	trigger_kind      TEXT NOT NULL,
	trigger_value     TEXT NOT NULL,
	retention_days    INTEGER,
	retention_count   INTEGER,
	compression       TEXT NOT NULL DEFAULT '',
	mode              TEXT NOT NULL DEFAULT '',
	storage           TEXT NOT NULL DEFAULT '',
	notify_on_success INTEGER NOT NULL DEFAULT 0,
	notify_on_failure INTEGER NOT NULL DEFAULT 0,
	notify_email      TEXT NOT NULL DEFAULT '',
	enabled           INTEGER NOT NULL DEFAULT 1,
	next_run          INTEGER NOT NULL,
	last_run          INTEGER,
	last_status       TEXT NOT NULL DEFAULT '',
	last_error        TEXT NOT NULL DEFAULT '',
	claimed_until     INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run);

CREATE TABLE IF NOT EXISTS action_schedules (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL,
	cluster_id    TEXT NOT NULL REFERENCES clusters(id),
	node          TEXT NOT NULL,
	vmid          INTEGER NOT NULL,
	action        TEXT NOT NULL,
	trigger_kind  TEXT NOT NULL,
	trigger_value TEXT NOT NULL,
	enabled       INTEGER NOT NULL DEFAULT 1,
	next_run      INTEGER NOT NULL,
	last_run      INTEGER,
	last_status   TEXT NOT NULL DEFAULT '',
	last_error    TEXT NOT NULL DEFAULT '',
	claimed_until INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_due ON action_schedules(enabled, next_run);

CREATE TABLE IF NOT EXISTS history (
	id               TEXT PRIMARY KEY,
	schedule_id      TEXT NOT NULL,
	task_id          TEXT NOT NULL DEFAULT '',
	started_at       INTEGER NOT NULL,
	completed_at     INTEGER,
	status           TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_history_schedule ON history(schedule_id, started_at DESC);
`

// Store owns the database handle and exposes one typed view per port.
type Store struct {
	db *sql.DB

	Schedules *ScheduleStore
	History   *HistoryStore
	Actions   *ActionStore
	Clusters  *ClusterStore
}

// ScheduleStore persists backup schedules.
type ScheduleStore struct{ db *sql.DB }

// HistoryStore persists execution history.
type HistoryStore struct{ db *sql.DB }

// ActionStore persists recurring VM action schedules.
type ActionStore struct{ db *sql.DB }

// ClusterStore persists registered clusters.
type ClusterStore struct{ db *sql.DB }

// Open opens (or creates) the database at path and runs the schema migration.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		db:        db,
		Schedules: &ScheduleStore{db: db},
		History:   &HistoryStore{db: db},
		Actions:   &ActionStore{db: db},
		Clusters:  &ClusterStore{db: db},
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// statusPlaceholders renders "?, ?, ?" for IN clauses.
func statusPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
