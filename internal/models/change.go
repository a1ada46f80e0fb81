package models

import (
	"fmt"
	"sort"
	"time"
)

// Change represents a change under review on the review service.
// The service owns it; patchtroll only reads it and appends review messages.
type Change struct {
	ID        string `json:"id"`        // service-wide identifier (project~branch~Change-Id)
	Number    int    `json:"number"`    // numeric change number
	ChangeID  string `json:"change_id"` // Change-Id footer
	Project   string `json:"project"`
	Branch    string `json:"branch"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	URL       string `json:"url"`
	Current   *Revision
	Revisions []*Revision // ordered by Number
	Messages  []*Message  // ordered by Date
}

// Revision is an immutable snapshot of a change's content.
type Revision struct {
	Number   int     `json:"number"`
	SHA      string  `json:"sha"`
	Ref      string  `json:"ref"`       // e.g. refs/changes/45/123445/3
	FetchURL string  `json:"fetch_url"` // repository URL the ref can be fetched from
	Commit   *Commit `json:"commit,omitempty"`
}

// Commit is the commit metadata attached to a revision.
type Commit struct {
	SHA     string   `json:"sha"`
	Subject string   `json:"subject"`
	Message string   `json:"message"`
	Parents []string `json:"parents,omitempty"`
}

// Message is a review message previously posted on a change.
type Message struct {
	ID             string    `json:"id"`
	Tag            string    `json:"tag,omitempty"`
	Author         string    `json:"author,omitempty"`
	Text           string    `json:"message"`
	RevisionNumber int       `json:"revision_number"`
	Date           time.Time `json:"date"`
}

// CurrentRevisionNumber returns the number of the current revision, 0 if unknown.
func (c *Change) CurrentRevisionNumber() int {
	if c.Current == nil {
		return 0
	}
	return c.Current.Number
}

// CommitMessage returns the full commit message of the current revision.
func (c *Change) CommitMessage() string {
	if c.Current == nil || c.Current.Commit == nil {
		return ""
	}
	return c.Current.Commit.Message
}

// HasMessage reports whether a message carrying tag was posted against revision.
func (c *Change) HasMessage(tag string, revision int) bool {
	for _, m := range c.Messages {
		if m.Tag == tag && m.RevisionNumber == revision {
			return true
		}
	}
	return false
}

// SortRevisions orders Revisions by number and points Current at the newest one
// if it has not been set.
func (c *Change) SortRevisions() {
	sort.Slice(c.Revisions, func(i, j int) bool {
		return c.Revisions[i].Number < c.Revisions[j].Number
	})
	if c.Current == nil && len(c.Revisions) > 0 {
		c.Current = c.Revisions[len(c.Revisions)-1]
	}
}

func (c *Change) String() string {
	return fmt.Sprintf("%d/%d %q", c.Number, c.CurrentRevisionNumber(), c.Subject)
}

// ShortSHA returns the first 12 characters of the revision commit.
func (r *Revision) ShortSHA() string {
	if len(r.SHA) > 12 {
		return r.SHA[:12]
	}
	return r.SHA
}
