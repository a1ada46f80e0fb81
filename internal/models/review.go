package models

import "time"

// ReviewRecord is a review patchtroll computed for one change revision.
type ReviewRecord struct {
	ID       int64     `json:"id"`
	Change   int       `json:"change"`
	Revision int       `json:"revision"`
	Subject  string    `json:"subject"`
	Kinds    []string  `json:"kinds"`
	Vote     int       `json:"vote"`
	Notify   string    `json:"notify"`
	DryRun   bool      `json:"dry_run"`
	PostedAt time.Time `json:"posted_at"`
}
