package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/models"
	"github.com/kilupskalvis/patchtroll/internal/patch"
)

// base carries the collaborators and the steps every strategy shares.
type base struct {
	deps Deps
}

// candidateDiff fetches the change's current revision and returns its diff.
func (b *base) candidateDiff(ctx context.Context, c *models.Change) (string, error) {
	if c.Current == nil {
		return "", fmt.Errorf("change %d has no current revision", c.Number)
	}
	remote := c.Current.FetchURL
	if remote == "" {
		remote = b.deps.ChangeRemote
	}
	sha, err := b.deps.Git.Fetch(ctx, remote, c.Current.Ref)
	if err != nil {
		return "", fmt.Errorf("fetch change %d: %w", c.Number, err)
	}
	diff, err := b.deps.Git.Show(ctx, sha)
	if err != nil {
		return "", fmt.Errorf("show change %d: %w", c.Number, err)
	}
	return diff, nil
}

// compare diffs the reference content against the change and records
// Backport or AlteredUpstream when they differ.
func (b *base) compare(ctx context.Context, res *Result, c *models.Change, reference, label string) error {
	candidate, err := b.candidateDiff(ctx, c)
	if err != nil {
		return err
	}
	return b.compareWith(res, c, reference, candidate, label)
}

func (b *base) compareWith(res *Result, c *models.Change, reference, candidate, label string) error {
	residual, err := patch.CompareText(reference, candidate)
	if err != nil {
		return fmt.Errorf("compare change %d against %s: %w", c.Number, label, err)
	}
	if residual.Empty() {
		b.deps.Logger.Debug("change matches reference", "change", c.Number, "reference", label)
		return nil
	}

	text := residual.Unified(label, "this change")
	b.deps.Logger.Debug("change differs from reference", "change", c.Number, "reference", label, "residual", text)

	if ParsePrefixes(c.Subject).Backport() {
		res.Add(Backport, "This change is labelled BACKPORT. The differences from "+label+
			" are listed below to help reviewers:\n\n"+text)
		return nil
	}
	res.Add(AlteredUpstream, "This change does not match "+label+
		". Either restore the original content or relabel the change as BACKPORT\n"+
		"and describe the changes in the commit message. Differences:\n\n"+text)
	return nil
}

// checkFixes records FixesRef for upstream commits reachable from ref that fix sha.
func (b *base) checkFixes(ctx context.Context, res *Result, sha, ref string) error {
	fixes, err := b.deps.Git.FindFixes(ctx, sha, ref)
	if err != nil {
		return fmt.Errorf("find fixes for %s: %w", shortSHA(sha), err)
	}
	if len(fixes) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The upstream commit %s has been fixed by the following commit(s), consider picking them as well:\n", shortSHA(sha))
	for _, f := range fixes {
		fmt.Fprintf(&sb, "  %s (%q)\n", shortSHA(f.SHA), f.Subject)
	}
	res.Add(FixesRef, sb.String())
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
