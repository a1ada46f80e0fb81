package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// (cherry picked from commit <sha>
//  <remote> <branch>)
var fromGitRe = regexp.MustCompile(`\(cherry picked from commit ([0-9a-f]{7,40})\s+(\S+)\s+([^\s)]+)\)`)

// A maintainer tree is named by a git://, http(s):// URL or a configured
// remote name; branches are plain ref names.
var (
	remoteURLRe  = regexp.MustCompile(`^(https?|git)://[A-Za-z0-9.-]+(:[0-9]+)?(/[A-Za-z0-9._~%+/-]*)?$`)
	remoteNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	branchRe     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)
)

func validRemote(remote string) bool {
	return remoteURLRe.MatchString(remote) || remoteNameRe.MatchString(remote)
}

func validBranch(branch string) bool {
	return branchRe.MatchString(branch) &&
		!strings.Contains(branch, "..") &&
		!strings.Contains(branch, "//") &&
		!strings.HasSuffix(branch, "/") &&
		!strings.HasSuffix(branch, ".lock")
}

// FromGit reviews FROMGIT changes against a maintainer tree.
type FromGit struct {
	base
}

func (s *FromGit) Name() string { return "fromgit" }

func (s *FromGit) CanReview(c *models.Change) bool {
	return ParsePrefixes(c.Subject).Has(PrefixFromGit)
}

func (s *FromGit) Review(ctx context.Context, c *models.Change) (*Result, error) {
	res := NewResult(c)
	msg := c.CommitMessage()
	checkFields(res, msg)

	m := fromGitRe.FindStringSubmatch(msg)
	if m == nil {
		res.Add(MissingHash, "The commit message does not reference the maintainer tree commit.\n"+
			"FROMGIT changes need a line of the form\n"+
			"\"(cherry picked from commit <sha>\n <remote> <branch>)\".")
		return res, nil
	}
	sha, remote, branch := m[1], m[2], m[3]
	if !validRemote(remote) || !validBranch(branch) {
		s.deps.Logger.Warn("rejected maintainer tree reference", "change", c.Number, "remote", remote, "branch", branch)
		res.Add(InvalidHash, fmt.Sprintf("%q %q does not name a git remote and branch.", remote, branch))
		return res, nil
	}

	// Errors fetching the change itself propagate; only the named remote is
	// reported as a bad reference.
	candidate, err := s.candidateDiff(ctx, c)
	if err != nil {
		return nil, err
	}

	tip, err := s.deps.Git.Fetch(ctx, remote, branch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.deps.Logger.Warn("could not fetch maintainer tree", "change", c.Number, "remote", remote, "branch", branch, "error", err)
		res.Add(InvalidHash, fmt.Sprintf("Branch %s could not be fetched from %s.", branch, remote))
		return res, nil
	}

	reachable, err := s.deps.Git.IsAncestor(ctx, sha, tip)
	if err != nil {
		return nil, fmt.Errorf("check %s is in %s %s: %w", sha, remote, branch, err)
	}
	if !reachable {
		res.Add(InvalidHash, fmt.Sprintf("Commit %s was not found on %s %s.", sha, remote, branch))
		return res, nil
	}

	reference, err := s.deps.Git.Show(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("show %s: %w", sha, err)
	}
	if err := s.compareWith(res, c, reference, candidate, "maintainer commit "+shortSHA(sha)); err != nil {
		return nil, err
	}
	if err := s.checkFixes(ctx, res, sha, tip); err != nil {
		return nil, err
	}

	return res.finish(), nil
}
