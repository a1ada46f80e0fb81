package review

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/kilupskalvis/patchtroll/internal/mailpatch"
	"github.com/kilupskalvis/patchtroll/internal/models"
)

var amRe = regexp.MustCompile(`\(am from (https?://[^\s)]+)\)`)

// FromList reviews FROMLIST changes against the patch posted to the mailing list.
type FromList struct {
	base
}

func (s *FromList) Name() string { return "fromlist" }

func (s *FromList) CanReview(c *models.Change) bool {
	return ParsePrefixes(c.Subject).Has(PrefixFromList)
}

func (s *FromList) Review(ctx context.Context, c *models.Change) (*Result, error) {
	res := NewResult(c)
	msg := c.CommitMessage()
	checkFields(res, msg)

	m := amRe.FindStringSubmatch(msg)
	if m == nil {
		res.Add(MissingAm, "The commit message does not link to the mailing list post.\n"+
			"FROMLIST changes need a line of the form \"(am from <patchwork or lore url>)\".")
		return res, nil
	}
	url := m[1]

	reference, err := s.deps.Patches.FetchPatch(ctx, url)
	if errors.Is(err, mailpatch.ErrNotFound) {
		s.deps.Logger.Warn("mailing list patch not found, skipping", "change", c.Number, "url", url)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if err := s.compare(ctx, res, c, reference, "the patch at "+url); err != nil {
		return nil, err
	}

	return res.finish(), nil
}
