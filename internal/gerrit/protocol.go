// Package gerrit is a client for the Gerrit code review REST API.
package gerrit

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// timeLayout is the format of Gerrit timestamps, always UTC.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Timestamp decodes Gerrit's quoted "2006-01-02 15:04:05.000000000" times.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timeLayout) + `"`), nil
}

// AccountInfo identifies a Gerrit user.
type AccountInfo struct {
	AccountID int    `json:"_account_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ChangeInfo is the JSON entity returned by the changes endpoints.
type ChangeInfo struct {
	ID              string                   `json:"id"`
	Project         string                   `json:"project"`
	Branch          string                   `json:"branch"`
	ChangeID        string                   `json:"change_id"`
	Subject         string                   `json:"subject"`
	Status          string                   `json:"status"`
	Number          int                      `json:"_number"`
	Updated         Timestamp                `json:"updated"`
	CurrentRevision string                   `json:"current_revision,omitempty"`
	Revisions       map[string]*RevisionInfo `json:"revisions,omitempty"`
	Messages        []*ChangeMessageInfo     `json:"messages,omitempty"`
	MoreChanges     bool                     `json:"_more_changes,omitempty"`
}

// RevisionInfo describes one patch set.
type RevisionInfo struct {
	Number int                   `json:"_number"`
	Ref    string                `json:"ref"`
	Fetch  map[string]*FetchInfo `json:"fetch,omitempty"`
	Commit *CommitInfo           `json:"commit,omitempty"`
}

// FetchInfo tells how a patch set can be downloaded.
type FetchInfo struct {
	URL string `json:"url"`
	Ref string `json:"ref"`
}

// CommitInfo is the commit behind a patch set.
type CommitInfo struct {
	Commit  string        `json:"commit,omitempty"`
	Parents []*CommitInfo `json:"parents,omitempty"`
	Subject string        `json:"subject"`
	Message string        `json:"message,omitempty"`
}

// ChangeMessageInfo is a message posted on a change.
type ChangeMessageInfo struct {
	ID             string       `json:"id"`
	Author         *AccountInfo `json:"author,omitempty"`
	Date           Timestamp    `json:"date"`
	Message        string       `json:"message"`
	Tag            string       `json:"tag,omitempty"`
	RevisionNumber int          `json:"_revision_number"`
}

// ReviewInput is the body of a set-review request.
type ReviewInput struct {
	Message string         `json:"message,omitempty"`
	Tag     string         `json:"tag,omitempty"`
	Labels  map[string]int `json:"labels,omitempty"`
	Notify  string         `json:"notify,omitempty"`
}

// ReviewResult is the reply to a set-review request.
type ReviewResult struct {
	Labels map[string]int `json:"labels,omitempty"`
}

// fetchPreference orders the download schemes we can use without extra setup.
var fetchPreference = []string{"anonymous http", "http", "https"}

// toModel converts a ChangeInfo into the review model. baseURL is used to
// build the change's web link.
func (ci *ChangeInfo) toModel(baseURL string) *models.Change {
	c := &models.Change{
		ID:       ci.ID,
		Number:   ci.Number,
		ChangeID: ci.ChangeID,
		Project:  ci.Project,
		Branch:   ci.Branch,
		Subject:  ci.Subject,
		Status:   ci.Status,
		URL:      fmt.Sprintf("%s/c/%s/+/%d", strings.TrimSuffix(baseURL, "/"), ci.Project, ci.Number),
	}

	for sha, ri := range ci.Revisions {
		rev := &models.Revision{
			Number: ri.Number,
			SHA:    sha,
			Ref:    ri.Ref,
		}
		for _, scheme := range fetchPreference {
			if f, ok := ri.Fetch[scheme]; ok {
				rev.FetchURL = f.URL
				if f.Ref != "" {
					rev.Ref = f.Ref
				}
				break
			}
		}
		if ri.Commit != nil {
			commit := &models.Commit{
				SHA:     sha,
				Subject: ri.Commit.Subject,
				Message: ri.Commit.Message,
			}
			for _, p := range ri.Commit.Parents {
				commit.Parents = append(commit.Parents, p.Commit)
			}
			rev.Commit = commit
		}
		c.Revisions = append(c.Revisions, rev)
		if sha == ci.CurrentRevision {
			c.Current = rev
		}
	}
	c.SortRevisions()

	for _, mi := range ci.Messages {
		m := &models.Message{
			ID:             mi.ID,
			Tag:            mi.Tag,
			Text:           mi.Message,
			RevisionNumber: mi.RevisionNumber,
			Date:           mi.Date.Time,
		}
		if mi.Author != nil {
			m.Author = mi.Author.Name
			if m.Author == "" {
				m.Author = mi.Author.Email
			}
		}
		c.Messages = append(c.Messages, m)
	}

	return c
}
