package patch

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Op marks a residual line as present only in the candidate or only in the reference.
type Op byte

const (
	OpAdd    Op = '+'
	OpDelete Op = '-'
)

// Change is one line of the residual difference.
type Change struct {
	Op   Op
	Text string
}

func (c Change) String() string {
	return string(c.Op) + c.Text
}

// Residual is the line-level difference between two normalized diffs.
// An empty Residual means the two diffs are equivalent.
type Residual struct {
	Changes []Change

	reference []string
	candidate []string
}

// Empty reports whether the compared diffs are equivalent.
func (r Residual) Empty() bool {
	return len(r.Changes) == 0
}

// Added returns the lines only present in the candidate.
func (r Residual) Added() []string {
	return r.filter(OpAdd)
}

// Deleted returns the lines only present in the reference.
func (r Residual) Deleted() []string {
	return r.filter(OpDelete)
}

func (r Residual) filter(op Op) []string {
	var out []string
	for _, c := range r.Changes {
		if c.Op == op {
			out = append(out, c.Text)
		}
	}
	return out
}

// Unified renders the residual as zero-context unified diff text.
func (r Residual) Unified(from, to string) string {
	if r.Empty() {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(r.reference),
		B:        terminate(r.candidate),
		FromFile: from,
		ToFile:   to,
		Context:  0,
	})
	if err != nil {
		// Writing into a strings.Builder does not fail; fall back to the raw lines.
		return r.String()
	}
	return text
}

func (r Residual) String() string {
	var sb strings.Builder
	for _, c := range r.Changes {
		sb.WriteString(c.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Compare diffs two normalized line sequences with no context. Insertions,
// deletions and reorderings are all reported; whitespace is significant.
func Compare(reference, candidate []string) Residual {
	r := Residual{reference: reference, candidate: candidate}

	m := difflib.NewMatcher(reference, candidate)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'r', 'd':
			for _, l := range reference[op.I1:op.I2] {
				r.Changes = append(r.Changes, Change{Op: OpDelete, Text: l})
			}
		}
		if op.Tag == 'r' || op.Tag == 'i' {
			for _, l := range candidate[op.J1:op.J2] {
				r.Changes = append(r.Changes, Change{Op: OpAdd, Text: l})
			}
		}
	}

	return r
}

// CompareText normalizes both diffs and compares them.
func CompareText(reference, candidate string) (Residual, error) {
	ref, err := NormalizeText(reference)
	if err != nil {
		return Residual{}, err
	}
	cand, err := NormalizeText(candidate)
	if err != nil {
		return Residual{}, err
	}
	return Compare(ref, cand), nil
}

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
