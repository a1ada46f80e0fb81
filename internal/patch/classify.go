// Package patch implements the patch-equivalence engine: it classifies lines of
// unified diff text, drops the categories that vary between an upstream commit
// and its backport without changing code, and diffs what is left.
package patch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category is the structural role of one line of unified diff text.
type Category int

const (
	Unclassified Category = iota
	HunkHeader
	GitDiffHeader
	IndexLine
	DeletedFileMarker
	AddedFileMarker
	SimilarityLine
	RenameLine
	Content
)

func (c Category) String() string {
	switch c {
	case HunkHeader:
		return "hunk"
	case GitDiffHeader:
		return "gitdiff"
	case IndexLine:
		return "index"
	case DeletedFileMarker:
		return "deleted"
	case AddedFileMarker:
		return "added"
	case SimilarityLine:
		return "similarity"
	case RenameLine:
		return "rename"
	case Content:
		return "content"
	default:
		return "unclassified"
	}
}

// Line is one classified line of diff text.
type Line struct {
	Text     string
	Category Category

	// Set for SimilarityLine.
	Similarity int
	// Set for RenameLine: "from" or "to", and the path.
	RenameDir  string
	RenamePath string
}

var (
	similarityRe = regexp.MustCompile(`^similarity index ([0-9]+)%$`)
	renameRe     = regexp.MustCompile(`^rename (from|to) (.*)$`)
)

// Extended git headers that describe real content changes. They are kept as
// Content so a mode flip or binary change is never normalized away.
var contentHeaders = []string{
	"old mode ",
	"new mode ",
	"copy from ",
	"copy to ",
	"dissimilarity index ",
	"Binary files ",
	"GIT binary patch",
}

// Classify returns the category of a single line of diff text.
func Classify(text string) Line {
	l := Line{Text: text}

	switch {
	case text == "":
		l.Category = Unclassified
	case strings.HasPrefix(text, "@@ "):
		l.Category = HunkHeader
	case strings.HasPrefix(text, "diff --git "):
		l.Category = GitDiffHeader
	case strings.HasPrefix(text, "index "):
		l.Category = IndexLine
	case strings.HasPrefix(text, "deleted file mode "):
		l.Category = DeletedFileMarker
	case strings.HasPrefix(text, "new file mode "):
		l.Category = AddedFileMarker
	case similarityRe.MatchString(text):
		m := similarityRe.FindStringSubmatch(text)
		l.Category = SimilarityLine
		l.Similarity, _ = strconv.Atoi(m[1])
	case renameRe.MatchString(text):
		m := renameRe.FindStringSubmatch(text)
		l.Category = RenameLine
		l.RenameDir = m[1]
		l.RenamePath = m[2]
	default:
		l.Category = contentCategory(text)
	}

	return l
}

func contentCategory(text string) Category {
	switch text[0] {
	case '+', '-', ' ', '\\':
		return Content
	}
	for _, h := range contentHeaders {
		if strings.HasPrefix(text, h) {
			return Content
		}
	}
	return Unclassified
}

// ErrUnclassified is matched by every *UnclassifiedError.
var ErrUnclassified = errors.New("unclassified diff line")

// UnclassifiedError reports a diff line that fits no known category.
type UnclassifiedError struct {
	LineNo int // 1-based
	Text   string
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("could not classify diff line %d: %q", e.LineNo, e.Text)
}

func (e *UnclassifiedError) Is(target error) bool {
	return target == ErrUnclassified
}

// ClassifyText classifies every non-empty line of diff. It fails on the first
// line it cannot classify rather than guessing. Lines are split on "\n" only;
// a carriage return stays part of the line's text.
func ClassifyText(diff string) ([]Line, error) {
	var lines []Line
	for i, text := range strings.Split(diff, "\n") {
		if text == "" {
			continue
		}
		l := Classify(text)
		if l.Category == Unclassified {
			return nil, &UnclassifiedError{LineNo: i + 1, Text: text}
		}
		lines = append(lines, l)
	}
	return lines, nil
}
