// Package db provides SQLite database operations for the mesa request tracker.
//
// The database is stored at ~/.mesa/mesa.db by default.
// Use Open() to connect and Init() to create the schema.
//
// All timestamps are written in UTC so that range filters and ordering can be
// done on the stored text.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	departments TEXT NOT NULL DEFAULT '[]',
	position TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS departments (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	priority TEXT NOT NULL,
	priority_rank INTEGER NOT NULL,
	type TEXT NOT NULL,
	channel TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	level INTEGER,
	status TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	requester_name TEXT NOT NULL,
	assigned_to TEXT,
	assigned_to_name TEXT,
	assigned_by_id TEXT,
	assigned_by_name TEXT,
	estimated_hours REAL,
	estimated_due DATETIME,
	requested_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completion_date DATETIME,
	rejection_reason TEXT,
	review_url TEXT,
	review_by TEXT,
	review_at DATETIME,
	feedback_rating TEXT,
	feedback_comment TEXT,
	feedback_at DATETIME,
	feedback_by_id TEXT,
	feedback_by_name TEXT,
	worklog_hours REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS request_events (
	id INTEGER PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
	from_status TEXT,
	to_status TEXT NOT NULL,
	at DATETIME NOT NULL,
	by_user_id TEXT NOT NULL,
	by_user_name TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS requests_fts USING fts5(
	title,
	description,
	content='requests',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS requests_ai AFTER INSERT ON requests BEGIN
	INSERT INTO requests_fts(rowid, title, description)
	VALUES (NEW.rowid, NEW.title, NEW.description);
END;

CREATE TRIGGER IF NOT EXISTS requests_ad AFTER DELETE ON requests BEGIN
	INSERT INTO requests_fts(requests_fts, rowid, title, description)
	VALUES ('delete', OLD.rowid, OLD.title, OLD.description);
END;

CREATE TRIGGER IF NOT EXISTS requests_au AFTER UPDATE OF title, description ON requests BEGIN
	INSERT INTO requests_fts(requests_fts, rowid, title, description)
	VALUES ('delete', OLD.rowid, OLD.title, OLD.description);
	INSERT INTO requests_fts(rowid, title, description)
	VALUES (NEW.rowid, NEW.title, NEW.description);
END;

CREATE TABLE IF NOT EXISTS trash (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	requester_name TEXT NOT NULL DEFAULT '',
	request_json TEXT NOT NULL,
	deleted_at DATETIME NOT NULL,
	deleted_by_id TEXT NOT NULL,
	deleted_by_name TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS worklogs (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	user_name TEXT NOT NULL,
	hours REAL NOT NULL,
	note TEXT,
	logged_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_logins (
	id INTEGER PRIMARY KEY,
	key TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
CREATE INDEX IF NOT EXISTS idx_requests_requested ON requests(requested_at);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_department ON requests(department);
CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_id);
CREATE INDEX IF NOT EXISTS idx_requests_assigned ON requests(assigned_to);
CREATE INDEX IF NOT EXISTS idx_requests_type ON requests(type);
CREATE INDEX IF NOT EXISTS idx_requests_level ON requests(level);
CREATE INDEX IF NOT EXISTS idx_requests_channel ON requests(channel);
CREATE INDEX IF NOT EXISTS idx_events_request ON request_events(request_id);
CREATE INDEX IF NOT EXISTS idx_events_at ON request_events(at);
CREATE INDEX IF NOT EXISTS idx_trash_deleted ON trash(deleted_at);
CREATE INDEX IF NOT EXISTS idx_trash_expires ON trash(expires_at);
CREATE INDEX IF NOT EXISTS idx_worklogs_request ON worklogs(request_id);
CREATE INDEX IF NOT EXISTS idx_worklogs_user ON worklogs(user_id, logged_at);
CREATE INDEX IF NOT EXISTS idx_failed_logins_key ON failed_logins(key, created_at);
`

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQL database connection with request-tracker operations.
type DB struct {
	*sql.DB
	now func() time.Time
}

// DefaultPath returns the default database path (~/.mesa/mesa.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mesa", "mesa.db"), nil
}

// Open opens or creates the database at the given path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB, now: time.Now}, nil
}

// Init creates the schema.
func (db *DB) Init() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetClock overrides the time source. Tests use it to pin timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// Now returns the current time in UTC according to the database clock.
func (db *DB) Now() time.Time {
	return db.now().UTC()
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
