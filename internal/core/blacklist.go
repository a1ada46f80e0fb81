package core

import "github.com/kilupskalvis/patchtroll/internal/models"

// Blacklist remembers the last revision seen for each change so a revision is
// reviewed at most once per process (or across restarts when persisted).
// It is owned by a single sweep loop and not safe for concurrent use.
type Blacklist struct {
	entries map[int]int
}

// NewBlacklist returns a blacklist seeded with entries (change → revision).
func NewBlacklist(entries map[int]int) *Blacklist {
	b := &Blacklist{entries: make(map[int]int, len(entries))}
	for c, r := range entries {
		b.entries[c] = r
	}
	return b
}

// Add records the current revision of c. Adding again is a no-op.
func (b *Blacklist) Add(c *models.Change) {
	b.entries[c.Number] = c.CurrentRevisionNumber()
}

// Contains reports whether the current revision of c was already seen.
func (b *Blacklist) Contains(c *models.Change) bool {
	rev, ok := b.entries[c.Number]
	return ok && rev == c.CurrentRevisionNumber()
}

// Len returns the number of changes tracked.
func (b *Blacklist) Len() int {
	return len(b.entries)
}

// Snapshot returns a copy of the entries.
func (b *Blacklist) Snapshot() map[int]int {
	out := make(map[int]int, len(b.entries))
	for c, r := range b.entries {
		out[c] = r
	}
	return out
}
