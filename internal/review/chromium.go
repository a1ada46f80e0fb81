package review

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// Chromium reports the net kernel config effect of CHROMIUM changes.
type Chromium struct {
	base
}

func (s *Chromium) Name() string { return "chromium" }

func (s *Chromium) CanReview(c *models.Change) bool {
	p := ParsePrefixes(c.Subject)
	return p.Has(PrefixChromium) && !p.Has(PrefixUpstream) && !p.Has(PrefixBackport) &&
		!p.Has(PrefixFromGit) && !p.Has(PrefixFromList)
}

func (s *Chromium) Review(ctx context.Context, c *models.Change) (*Result, error) {
	diff, err := s.candidateDiff(ctx, c)
	if err != nil {
		return nil, err
	}

	delta, err := s.deps.Kconfig.Check(diff)
	if err != nil {
		return nil, fmt.Errorf("config impact of change %d: %w", c.Number, err)
	}
	if delta.Empty() {
		return nil, nil
	}

	res := NewResult(c)
	res.Add(KconfigChange, "This change has the following net effect on the kernel config:\n\n"+delta.String())
	return res, nil
}
