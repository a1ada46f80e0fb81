package mailpatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// ErrNoDiff is returned for an mbox that carries no file changes.
var ErrNoDiff = errors.New("mbox contains no diff")

// ZeroContext parses an mbox (or any patch text) and renders its file changes
// as a git diff with no context lines.
func ZeroContext(mbox string) (string, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(mbox))
	if err != nil {
		return "", fmt.Errorf("parse patch: %w", err)
	}
	if len(files) == 0 {
		return "", ErrNoDiff
	}

	var sb strings.Builder
	for _, f := range files {
		writeFile(&sb, f)
	}
	return sb.String(), nil
}

func writeFile(sb *strings.Builder, f *gitdiff.File) {
	oldName, newName := f.OldName, f.NewName
	if oldName == "" {
		oldName = newName
	}
	if newName == "" {
		newName = oldName
	}
	fmt.Fprintf(sb, "diff --git a/%s b/%s\n", oldName, newName)

	switch {
	case f.IsNew:
		fmt.Fprintf(sb, "new file mode %o\n", f.NewMode)
	case f.IsDelete:
		fmt.Fprintf(sb, "deleted file mode %o\n", f.OldMode)
	case f.OldMode != 0 && f.NewMode != 0 && f.OldMode != f.NewMode:
		fmt.Fprintf(sb, "old mode %o\nnew mode %o\n", f.OldMode, f.NewMode)
	}
	if f.IsRename {
		fmt.Fprintf(sb, "similarity index %d%%\nrename from %s\nrename to %s\n", f.Score, f.OldName, f.NewName)
	}

	if f.IsBinary {
		fmt.Fprintf(sb, "Binary files a/%s and b/%s differ\n", oldName, newName)
		return
	}
	if len(f.TextFragments) == 0 {
		return
	}

	from, to := "a/"+oldName, "b/"+newName
	if f.IsNew {
		from = "/dev/null"
	}
	if f.IsDelete {
		to = "/dev/null"
	}
	fmt.Fprintf(sb, "--- %s\n+++ %s\n", from, to)

	for _, frag := range f.TextFragments {
		writeFragment(sb, frag)
	}
}

// hunk is a run of consecutive added/deleted lines.
type hunk struct {
	oldStart, oldCount int64
	newStart, newCount int64
	lines              []gitdiff.Line
}

// writeFragment splits a fragment at its context lines and writes each run of
// changes as its own hunk, as git does with -U0.
func writeFragment(sb *strings.Builder, frag *gitdiff.TextFragment) {
	oldPos, newPos := frag.OldPosition, frag.NewPosition
	var cur *hunk

	flush := func() {
		if cur == nil {
			return
		}
		fmt.Fprintf(sb, "@@ -%s +%s @@\n", formatRange(cur.oldStart, cur.oldCount), formatRange(cur.newStart, cur.newCount))
		for _, l := range cur.lines {
			sb.WriteString(l.Op.String())
			sb.WriteString(strings.TrimSuffix(l.Line, "\n"))
			sb.WriteByte('\n')
			if l.NoEOL() {
				sb.WriteString("\\ No newline at end of file\n")
			}
		}
		cur = nil
	}

	for _, l := range frag.Lines {
		if l.Op == gitdiff.OpContext {
			flush()
			oldPos++
			newPos++
			continue
		}
		if cur == nil {
			cur = &hunk{oldStart: oldPos, newStart: newPos}
		}
		cur.lines = append(cur.lines, l)
		switch l.Op {
		case gitdiff.OpDelete:
			cur.oldCount++
			oldPos++
		case gitdiff.OpAdd:
			cur.newCount++
			newPos++
		}
	}
	flush()
}

func formatRange(start, count int64) string {
	switch count {
	case 0:
		return fmt.Sprintf("%d,0", max(start-1, 0))
	case 1:
		return fmt.Sprintf("%d", start)
	default:
		return fmt.Sprintf("%d,%d", start, count)
	}
}
