package store

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

// RunMigrations applies any pending database migrations. Version 1 is the
// base schema; version 2 added the persisted blacklist and dry-run marking.
func (s *Store) RunMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version, 0 for an empty database.
func (s *Store) getSchemaVersion() (int, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='patchtroll_schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 1) FROM patchtroll_schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// migrateToV2 adds the persisted blacklist and marks dry-run reviews.
func (s *Store) migrateToV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS blacklist (
		change_number INTEGER PRIMARY KEY,
		revision INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}

	// SQLite has no ADD COLUMN IF NOT EXISTS.
	var colCount int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('reviews')
		WHERE name='dry_run'
	`).Scan(&colCount); err != nil {
		return err
	}
	if colCount == 0 {
		if _, err := tx.Exec(`ALTER TABLE reviews ADD COLUMN dry_run BOOLEAN DEFAULT FALSE`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO patchtroll_schema_version (version) VALUES (2)"); err != nil {
		return err
	}
	return tx.Commit()
}
