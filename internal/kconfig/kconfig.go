// Package kconfig computes the net effect a diff has on kernel config fragments.
package kconfig

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// DefaultDirs are the directories holding ChromeOS kernel config fragments.
var DefaultDirs = []string{"chromeos/config/"}

// NotSet is the value recorded for "# CONFIG_X is not set".
const NotSet = "n"

var (
	setRe    = regexp.MustCompile(`^(CONFIG_[A-Za-z0-9_]+)=(.*)$`)
	notSetRe = regexp.MustCompile(`^# (CONFIG_[A-Za-z0-9_]+) is not set$`)
)

// Symbol is a config symbol and its value. Fragment is set only when the
// symbol takes different values in different fragments.
type Symbol struct {
	Name     string
	Value    string
	Fragment string
}

// Change is a symbol whose value differs before and after the diff.
type Change struct {
	Name     string
	Old      string
	New      string
	Fragment string
}

func where(fragment string) string {
	if fragment == "" {
		return ""
	}
	return " [" + fragment + "]"
}

// Delta is the net config effect of a diff. Each slice is sorted by name.
type Delta struct {
	Added   []Symbol
	Removed []Symbol
	Changed []Change
}

// Empty reports whether the diff has no net config effect.
func (d *Delta) Empty() bool {
	return d == nil || len(d.Added)+len(d.Removed)+len(d.Changed) == 0
}

func (d *Delta) String() string {
	if d.Empty() {
		return ""
	}
	var sb strings.Builder
	if len(d.Added) > 0 {
		sb.WriteString("Added:\n")
		for _, s := range d.Added {
			fmt.Fprintf(&sb, "  %s=%s%s\n", s.Name, s.Value, where(s.Fragment))
		}
	}
	if len(d.Removed) > 0 {
		sb.WriteString("Removed:\n")
		for _, s := range d.Removed {
			fmt.Fprintf(&sb, "  %s (was %s)%s\n", s.Name, s.Value, where(s.Fragment))
		}
	}
	if len(d.Changed) > 0 {
		sb.WriteString("Changed:\n")
		for _, c := range d.Changed {
			fmt.Fprintf(&sb, "  %s: %s -> %s%s\n", c.Name, c.Old, c.New, where(c.Fragment))
		}
	}
	return sb.String()
}

// Checker reads config fragments out of diffs.
type Checker struct {
	Dirs []string
}

// NewChecker returns a Checker over dirs, or DefaultDirs when none are given.
func NewChecker(dirs ...string) *Checker {
	if len(dirs) == 0 {
		dirs = DefaultDirs
	}
	return &Checker{Dirs: dirs}
}

// Touches reports whether path is a config fragment.
func (c *Checker) Touches(path string) bool {
	for _, d := range c.Dirs {
		if strings.HasPrefix(path, d) {
			return true
		}
	}
	return false
}

// values maps a symbol to its value in each fragment that sets it.
type values map[string]map[string]string

func (v values) set(sym, fragment, val string) {
	if v[sym] == nil {
		v[sym] = make(map[string]string)
	}
	v[sym][fragment] = val
}

// single returns the value of sym when every fragment agrees on it.
func (v values) single(sym string) (val string, ok bool) {
	for _, fv := range v[sym] {
		if ok && fv != val {
			return "", false
		}
		val, ok = fv, true
	}
	return val, true
}

// Check parses diff and returns the net config delta. A symbol moved between
// fragments with the same value has no effect. A symbol whose value differs
// between fragments is compared fragment by fragment.
func (c *Checker) Check(diff string) (*Delta, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	before := make(values)
	after := make(values)

	for _, f := range files {
		name := f.NewName
		if f.IsDelete {
			name = f.OldName
		}
		if !c.Touches(name) {
			continue
		}
		for _, frag := range f.TextFragments {
			for _, l := range frag.Lines {
				sym, val, ok := parseLine(l.Line)
				if !ok {
					continue
				}
				switch l.Op {
				case gitdiff.OpDelete:
					before.set(sym, name, val)
				case gitdiff.OpAdd:
					after.set(sym, name, val)
				}
			}
		}
	}

	symbols := make(map[string]bool)
	for sym := range before {
		symbols[sym] = true
	}
	for sym := range after {
		symbols[sym] = true
	}

	d := &Delta{}
	for sym := range symbols {
		ov, oneOld := before.single(sym)
		nv, oneNew := after.single(sym)
		if oneOld && oneNew {
			d.add(sym, "", ov, len(before[sym]) > 0, nv, len(after[sym]) > 0)
			continue
		}
		fragments := make(map[string]bool)
		for f := range before[sym] {
			fragments[f] = true
		}
		for f := range after[sym] {
			fragments[f] = true
		}
		for f := range fragments {
			ov, hadOld := before[sym][f]
			nv, hasNew := after[sym][f]
			d.add(sym, f, ov, hadOld, nv, hasNew)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return symbolLess(d.Added[i], d.Added[j]) })
	sort.Slice(d.Removed, func(i, j int) bool { return symbolLess(d.Removed[i], d.Removed[j]) })
	sort.Slice(d.Changed, func(i, j int) bool {
		a, b := d.Changed[i], d.Changed[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Fragment < b.Fragment
	})
	return d, nil
}

func (d *Delta) add(sym, fragment, ov string, hadOld bool, nv string, hasNew bool) {
	switch {
	case hasNew && !hadOld:
		d.Added = append(d.Added, Symbol{Name: sym, Value: nv, Fragment: fragment})
	case hadOld && !hasNew:
		d.Removed = append(d.Removed, Symbol{Name: sym, Value: ov, Fragment: fragment})
	case hadOld && ov != nv:
		d.Changed = append(d.Changed, Change{Name: sym, Old: ov, New: nv, Fragment: fragment})
	}
}

func symbolLess(a, b Symbol) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Fragment < b.Fragment
}

func parseLine(line string) (sym, val string, ok bool) {
	line = strings.TrimSpace(line)
	if m := setRe.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	if m := notSetRe.FindStringSubmatch(line); m != nil {
		return m[1], NotSet, true
	}
	return "", "", false
}
