package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// RecordReview appends a review to the ledger and sets its ID.
func (s *Store) RecordReview(r *models.ReviewRecord) error {
	kinds, err := json.Marshal(r.Kinds)
	if err != nil {
		return fmt.Errorf("failed to encode kinds: %w", err)
	}
	if r.PostedAt.IsZero() {
		r.PostedAt = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO reviews (change_number, revision, subject, kinds, vote, notify, dry_run, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Change, r.Revision, r.Subject, string(kinds), r.Vote, r.Notify, r.DryRun, r.PostedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record review of %d/%d: %w", r.Change, r.Revision, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// RecentReviews returns up to limit reviews, newest first.
func (s *Store) RecentReviews(limit int) ([]*models.ReviewRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, change_number, revision, subject, kinds, vote, notify, dry_run, posted_at
		FROM reviews ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// ReviewsForChange returns the reviews of one change, oldest first.
func (s *Store) ReviewsForChange(change int) ([]*models.ReviewRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, change_number, revision, subject, kinds, vote, notify, dry_run, posted_at
		FROM reviews WHERE change_number = ? ORDER BY id ASC
	`, change)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

func scanReviews(rows *sql.Rows) ([]*models.ReviewRecord, error) {
	var records []*models.ReviewRecord
	for rows.Next() {
		var r models.ReviewRecord
		var kinds, postedAt string
		if err := rows.Scan(&r.ID, &r.Change, &r.Revision, &r.Subject, &kinds, &r.Vote, &r.Notify, &r.DryRun, &postedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kinds), &r.Kinds); err != nil {
			return nil, fmt.Errorf("failed to decode kinds of review %d: %w", r.ID, err)
		}
		r.PostedAt = parseTimestamp(postedAt)
		records = append(records, &r)
	}
	return records, rows.Err()
}
