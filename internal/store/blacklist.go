package store

import (
	"fmt"
)

// MarkSeen records that revision is the last seen revision of change.
func (s *Store) MarkSeen(change, revision int) error {
	_, err := s.db.Exec(`
		INSERT INTO blacklist (change_number, revision, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(change_number) DO UPDATE SET revision = excluded.revision, updated_at = CURRENT_TIMESTAMP
	`, change, revision)
	if err != nil {
		return fmt.Errorf("failed to mark %d/%d seen: %w", change, revision, err)
	}
	return nil
}

// SaveBlacklist replaces the persisted blacklist with entries.
func (s *Store) SaveBlacklist(entries map[int]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM blacklist"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO blacklist (change_number, revision) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for change, rev := range entries {
		if _, err := stmt.Exec(change, rev); err != nil {
			return fmt.Errorf("failed to save blacklist entry %d: %w", change, err)
		}
	}
	return tx.Commit()
}

// LoadBlacklist returns the persisted blacklist.
func (s *Store) LoadBlacklist() (map[int]int, error) {
	rows, err := s.db.Query("SELECT change_number, revision FROM blacklist")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[int]int)
	for rows.Next() {
		var change, rev int
		if err := rows.Scan(&change, &rev); err != nil {
			return nil, err
		}
		entries[change] = rev
	}
	return entries, rows.Err()
}
