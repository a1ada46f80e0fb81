package review

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

var cherryPickRe = regexp.MustCompile(`\(cherry picked from commit ([0-9a-f]{7,40})\)`)

// Upstream reviews UPSTREAM and BACKPORT changes against the mainline tree.
type Upstream struct {
	base
}

func (s *Upstream) Name() string { return "upstream" }

func (s *Upstream) CanReview(c *models.Change) bool {
	p := ParsePrefixes(c.Subject)
	if p.Has(PrefixFromGit) || p.Has(PrefixFromList) {
		return false
	}
	return p.Has(PrefixUpstream) || p.Has(PrefixBackport)
}

func (s *Upstream) Review(ctx context.Context, c *models.Change) (*Result, error) {
	res := NewResult(c)
	msg := c.CommitMessage()
	checkFields(res, msg)

	m := cherryPickRe.FindStringSubmatch(msg)
	if m == nil {
		res.Add(MissingHash, "The commit message does not reference the upstream commit.\n"+
			"Cherry-pick with 'git cherry-pick -x' so that a line of the form\n"+
			"\"(cherry picked from commit <sha>)\" is added.")
		return res, nil
	}
	sha := m[1]

	ok, err := s.deps.Git.CommitExists(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", sha, err)
	}
	if !ok {
		res.Add(InvalidHash, fmt.Sprintf("Commit %s referenced in the commit message does not exist in the upstream tree.", sha))
		return res, nil
	}

	inMainline, err := s.deps.Git.IsAncestor(ctx, sha, s.deps.Mainline)
	if err != nil {
		return nil, fmt.Errorf("check %s is in %s: %w", sha, s.deps.Mainline, err)
	}
	if !inMainline {
		res.Add(IncorrectPrefix, fmt.Sprintf("Commit %s is not in Linus' tree (%s).\n"+
			"Use FROMGIT with the maintainer tree and branch, or FROMLIST with a mailing list link.",
			shortSHA(sha), s.deps.Mainline))
		return res, nil
	}

	reference, err := s.deps.Git.Show(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("show %s: %w", sha, err)
	}
	if err := s.compare(ctx, res, c, reference, "upstream commit "+shortSHA(sha)); err != nil {
		return nil, err
	}
	if err := s.checkFixes(ctx, res, sha, s.deps.Mainline); err != nil {
		return nil, err
	}

	return res.finish(), nil
}
