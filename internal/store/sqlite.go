// Package store provides SQLite-based persistence for patchtroll.
// It keeps a ledger of computed reviews and, optionally, the review blacklist.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store represents the SQLite database store
type Store struct {
	db *sql.DB
}

// New creates a new store connection
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	return s, nil
}

// Open creates a store at dbPath and brings its schema up to date.
func Open(dbPath string) (*Store, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the base schema on an empty database and applies every
// migration after it.
func (s *Store) Initialize() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == 0 {
		if err := s.createBaseSchema(); err != nil {
			return err
		}
	}
	return s.RunMigrations()
}

// createBaseSchema creates the version 1 ledger: reviews and the kv table.
func (s *Store) createBaseSchema() error {
	schema := `
	-- Reviews computed for a change revision (append-only)
	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_number INTEGER NOT NULL,
		revision INTEGER NOT NULL,
		subject TEXT NOT NULL,
		kinds JSON NOT NULL,
		vote INTEGER NOT NULL,
		notify TEXT NOT NULL,
		posted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS patchtroll_schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_change ON reviews(change_number, revision);

	INSERT OR REPLACE INTO patchtroll_schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetValue gets a value from the key-value store
func (s *Store) GetValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetValue sets a value in the key-value store
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?",
		key, value, value,
	)
	return err
}

const lastRunKey = "last_run"

// SetLastRun records when a review run finished.
func (s *Store) SetLastRun(t time.Time) error {
	return s.SetValue(lastRunKey, t.UTC().Format(time.RFC3339))
}

// LastRun returns when the last review run finished, or the zero time if none did.
func (s *Store) LastRun() (time.Time, error) {
	v, err := s.GetValue(lastRunKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return parseTimestamp(v), nil
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
