package patch

// ignored holds the categories that legitimately differ between an upstream
// commit and its backport: hunk offsets, blob hashes, similarity scores and
// rename bookkeeping.
var ignored = map[Category]bool{
	HunkHeader:        true,
	GitDiffHeader:     true,
	IndexLine:         true,
	DeletedFileMarker: true,
	AddedFileMarker:   true,
	SimilarityLine:    true,
	RenameLine:        true,
}

// Ignored reports whether lines of category c are dropped by Normalize.
func Ignored(c Category) bool {
	return ignored[c]
}

// Normalize returns the text of the lines that carry code content, in order.
func Normalize(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if ignored[l.Category] {
			continue
		}
		out = append(out, l.Text)
	}
	return out
}

// NormalizeText classifies diff and normalizes the result.
func NormalizeText(diff string) ([]string, error) {
	lines, err := ClassifyText(diff)
	if err != nil {
		return nil, err
	}
	return Normalize(lines), nil
}
