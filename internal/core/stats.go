package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/review"
)

// Stats counts posted outcomes per kind. Keys are review.Kind names; unknown
// keys read from a checkpoint are carried through untouched.
type Stats struct {
	counts map[string]int
}

// NewStats returns zeroed counters for every kind.
func NewStats() *Stats {
	s := &Stats{counts: make(map[string]int)}
	for _, k := range review.AllKinds() {
		s.counts[k.String()] = 0
	}
	return s
}

// Inc counts one occurrence of kind.
func (s *Stats) Inc(kind review.Kind) {
	s.counts[kind.String()]++
}

// Get returns the count stored under name.
func (s *Stats) Get(name string) int {
	return s.counts[name]
}

// Total sums all counters.
func (s *Stats) Total() int {
	total := 0
	for _, v := range s.counts {
		total += v
	}
	return total
}

// keys returns the known kinds in order, then any extra keys sorted.
func (s *Stats) keys() []string {
	var keys []string
	known := make(map[string]bool)
	for _, k := range review.AllKinds() {
		keys = append(keys, k.String())
		known[k.String()] = true
	}
	var extra []string
	for k := range s.counts {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Summary renders "Summary: success=1 backport=0 ... total=N".
func (s *Stats) Summary() string {
	var sb strings.Builder
	sb.WriteString("Summary:")
	for _, k := range s.keys() {
		fmt.Fprintf(&sb, " %s=%d", k, s.counts[k])
	}
	fmt.Fprintf(&sb, " total=%d", s.Total())
	return sb.String()
}

func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.counts)
}

func (s *Stats) UnmarshalJSON(data []byte) error {
	counts := make(map[string]int)
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	fresh := NewStats()
	for k, v := range counts {
		fresh.counts[k] = v
	}
	s.counts = fresh.counts
	return nil
}

// LoadStats reads the checkpoint at path. A missing file yields zeroed stats
// and created=true; an unreadable or malformed file is an error.
func LoadStats(path string) (stats *Stats, created bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewStats(), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read stats %s: %w", path, err)
	}

	stats = &Stats{}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, false, fmt.Errorf("parse stats %s: %w", path, err)
	}
	return stats, false, nil
}

// Save writes the checkpoint atomically: readers see the old or the new
// file, never a partial one.
func (s *Stats) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
