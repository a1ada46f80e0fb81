package review

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/kconfig"
	"github.com/kilupskalvis/patchtroll/internal/models"
)

// Origin prefixes a kernel change subject can carry.
const (
	PrefixUpstream = "UPSTREAM"
	PrefixBackport = "BACKPORT"
	PrefixFromGit  = "FROMGIT"
	PrefixFromList = "FROMLIST"
	PrefixChromium = "CHROMIUM"
)

var knownPrefixes = map[string]bool{
	PrefixUpstream: true,
	PrefixBackport: true,
	PrefixFromGit:  true,
	PrefixFromList: true,
	PrefixChromium: true,
}

// Prefixes is the chain of origin prefixes leading a subject, e.g.
// "BACKPORT: FROMLIST: drm/msm: ..." yields [BACKPORT FROMLIST].
type Prefixes []string

// ParsePrefixes reads the leading origin prefixes of subject.
func ParsePrefixes(subject string) Prefixes {
	var p Prefixes
	rest := subject
	for {
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			return p
		}
		word := strings.TrimSpace(rest[:i])
		if !knownPrefixes[word] {
			return p
		}
		p = append(p, word)
		rest = rest[i+1:]
	}
}

// Has reports whether prefix is in the chain.
func (p Prefixes) Has(prefix string) bool {
	for _, w := range p {
		if w == prefix {
			return true
		}
	}
	return false
}

// Backport reports whether the change declares it was modified while porting.
func (p Prefixes) Backport() bool {
	return p.Has(PrefixBackport)
}

func (p Prefixes) String() string {
	return strings.Join(p, ": ")
}

// Strategy reviews changes following one origin convention.
type Strategy interface {
	Name() string
	// CanReview reports whether the change declares this strategy's origin.
	CanReview(c *models.Change) bool
	// Review returns the verdict for c, or nil when there is nothing to say.
	Review(ctx context.Context, c *models.Change) (*Result, error)
}

// ContentSource materializes commits from the local kernel repository.
type ContentSource interface {
	// Show returns the zero-context diff a commit introduces.
	Show(ctx context.Context, rev string) (string, error)
	CommitExists(ctx context.Context, rev string) (bool, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	// Fetch fetches ref from remote and returns the fetched commit.
	Fetch(ctx context.Context, remote, ref string) (string, error)
	// FindFixes returns commits reachable from ref carrying "Fixes: <sha>".
	FindFixes(ctx context.Context, sha, ref string) ([]models.Commit, error)
}

// PatchSource returns the zero-context diff of a patch posted to a mailing list.
type PatchSource interface {
	FetchPatch(ctx context.Context, url string) (string, error)
}

// ConfigChecker computes the net kernel config effect of a diff.
type ConfigChecker interface {
	Check(diff string) (*kconfig.Delta, error)
}

// Deps are the collaborators shared by all strategies.
type Deps struct {
	Git     ContentSource
	Patches PatchSource
	Kconfig ConfigChecker

	// Mainline is the local ref holding the upstream tree, e.g. "upstream/master".
	Mainline string
	// ChangeRemote is used to fetch a revision that carries no fetch URL.
	ChangeRemote string

	Logger *slog.Logger
}

// Selector picks the strategy for a change in fixed priority order.
type Selector struct {
	strategies []Strategy
}

// NewSelector builds the standard strategy set. The config-impact strategy is
// only consulted when withKconfig is set.
func NewSelector(deps Deps, withKconfig bool) *Selector {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Selector{strategies: []Strategy{
		&FromList{base{deps}},
		&FromGit{base{deps}},
		&Upstream{base{deps}},
	}}
	if withKconfig {
		s.strategies = append(s.strategies, &Chromium{base{deps}})
	}
	return s
}

// NewSelectorOf builds a selector over an explicit, ordered strategy set.
func NewSelectorOf(strategies ...Strategy) *Selector {
	return &Selector{strategies: strategies}
}

// Select returns the first strategy that can review c, or nil.
func (s *Selector) Select(c *models.Change) Strategy {
	for _, st := range s.strategies {
		if st.CanReview(c) {
			return st
		}
	}
	return nil
}

// Strategies returns the strategies in priority order.
func (s *Selector) Strategies() []Strategy {
	return s.strategies
}

var (
	bugRe  = regexp.MustCompile(`(?m)^BUG=`)
	testRe = regexp.MustCompile(`(?m)^TEST=`)
)

// checkFields records MissingFields when BUG= or TEST= is absent.
func checkFields(res *Result, msg string) {
	var missing []string
	if !bugRe.MatchString(msg) {
		missing = append(missing, "BUG=")
	}
	if !testRe.MatchString(msg) {
		missing = append(missing, "TEST=")
	}
	if len(missing) == 0 {
		return
	}
	res.Add(MissingFields, "The commit message is missing the following required field(s): "+
		strings.Join(missing, ", ")+"\nAdd them on their own lines near the end of the commit message.")
}
