// Package store persists admin tokens, bot documents and deploy history in
// a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dash/internal/security"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable wraps every failure of the underlying database.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the SQLite-backed document store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating when missing) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		// Create the file up front so it never exists with the umask's permissions.
		f, err := security.OpenAppendFile(path, security.PermDBFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS admins (
			token_hash TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL UNIQUE,
			delivery TEXT,
			commit_hash TEXT,
			message TEXT,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_started
			ON deployments(started_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// unavailable wraps a database error so callers can match ErrUnavailable.
func unavailable(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrUnavailable, action, err)
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
