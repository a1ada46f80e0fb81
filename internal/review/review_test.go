package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/patchtroll/internal/kconfig"
	"github.com/kilupskalvis/patchtroll/internal/mailpatch"
	"github.com/kilupskalvis/patchtroll/internal/models"
	"github.com/kilupskalvis/patchtroll/internal/patch"
)

const (
	upstreamSHA  = "1a2b3c4d5e6f7a8b9c0d1a2b3c4d5e6f7a8b9c0d"
	candidateSHA = "ffffffffffffffffffffffffffffffffffffffff"
	reviewHost   = "https://chromium.googlesource.com/chromiumos/third_party/kernel"
	changeRef    = "refs/changes/34/2041234/3"
)

const referenceDiff = `diff --git a/drivers/usb/core/hub.c b/drivers/usb/core/hub.c
index 1111111..2222222 100644
--- a/drivers/usb/core/hub.c
+++ b/drivers/usb/core/hub.c
@@ -13 +13 @@ static int hub_probe(void)
-	int d;
+	int d = 0;
`

// Same content on an older tree.
const matchingDiff = `diff --git a/drivers/usb/core/hub.c b/drivers/usb/core/hub.c
index 3333333..4444444 100644
--- a/drivers/usb/core/hub.c
+++ b/drivers/usb/core/hub.c
@@ -210 +210 @@ static int hub_probe(struct usb_interface *intf)
-	int d;
+	int d = 0;
`

const alteredDiff = `diff --git a/drivers/usb/core/hub.c b/drivers/usb/core/hub.c
index 3333333..4444444 100644
--- a/drivers/usb/core/hub.c
+++ b/drivers/usb/core/hub.c
@@ -210 +210,2 @@ static int hub_probe(struct usb_interface *intf)
-	int d;
+	int d = 0;
+	int g;
`

// fakeGit implements ContentSource from fixed tables.
type fakeGit struct {
	diffs     map[string]string
	commits   map[string]bool
	ancestors map[string]bool // "ancestor descendant"
	fetched   map[string]string
	fetchErr  error
	fixes     map[string][]models.Commit
	fetches   []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		diffs:     map[string]string{upstreamSHA: referenceDiff, candidateSHA: matchingDiff},
		commits:   map[string]bool{upstreamSHA: true},
		ancestors: map[string]bool{upstreamSHA + " upstream/master": true},
		fetched:   map[string]string{reviewHost + " " + changeRef: candidateSHA},
		fixes:     map[string][]models.Commit{},
	}
}

func (g *fakeGit) Show(_ context.Context, rev string) (string, error) {
	d, ok := g.diffs[rev]
	if !ok {
		return "", fmt.Errorf("unknown revision %s", rev)
	}
	return d, nil
}

func (g *fakeGit) CommitExists(_ context.Context, rev string) (bool, error) {
	return g.commits[rev], nil
}

func (g *fakeGit) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	return g.ancestors[ancestor+" "+descendant], nil
}

func (g *fakeGit) Fetch(_ context.Context, remote, ref string) (string, error) {
	key := remote + " " + ref
	g.fetches = append(g.fetches, key)
	if sha, ok := g.fetched[key]; ok {
		return sha, nil
	}
	if g.fetchErr != nil {
		return "", g.fetchErr
	}
	return "", fmt.Errorf("couldn't find remote ref %s", ref)
}

func (g *fakeGit) FindFixes(_ context.Context, sha, ref string) ([]models.Commit, error) {
	return g.fixes[sha+" "+ref], nil
}

// fakePatches implements PatchSource.
type fakePatches map[string]string

func (p fakePatches) FetchPatch(_ context.Context, url string) (string, error) {
	d, ok := p[url]
	if !ok {
		return "", fmt.Errorf("%s: %w", url, mailpatch.ErrNotFound)
	}
	return d, nil
}

func testDeps(git *fakeGit, patches fakePatches) Deps {
	return Deps{
		Git:      git,
		Patches:  patches,
		Kconfig:  kconfig.NewChecker(),
		Mainline: "upstream/master",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testChange(subject, body string) *models.Change {
	rev := &models.Revision{
		Number:   3,
		SHA:      candidateSHA,
		Ref:      changeRef,
		FetchURL: reviewHost,
		Commit:   &models.Commit{SHA: candidateSHA, Subject: subject, Message: subject + "\n\n" + body},
	}
	return &models.Change{
		Number:    2041234,
		Subject:   subject,
		URL:       "https://chromium-review.googlesource.com/c/chromiumos/third_party/kernel/+/2041234",
		Current:   rev,
		Revisions: []*models.Revision{rev},
	}
}

func runReview(t *testing.T, deps Deps, c *models.Change) (*Result, error) {
	t.Helper()
	st := NewSelector(deps, true).Select(c)
	require.NotNil(t, st, "no strategy for %q", c.Subject)
	return st.Review(context.Background(), c)
}

const fields = "BUG=b:123\nTEST=boot\n"

func TestParsePrefixes(t *testing.T) {
	tests := []struct {
		subject string
		want    Prefixes
	}{
		{"UPSTREAM: usb: hub: fix", Prefixes{"UPSTREAM"}},
		{"BACKPORT: FROMLIST: drm/msm: fix", Prefixes{"BACKPORT", "FROMLIST"}},
		{"FROMGIT:  media: fix", Prefixes{"FROMGIT"}},
		{"usb: hub: fix", nil},
		{"CHROMIUM: config: enable", Prefixes{"CHROMIUM"}},
		{"upstream: lower case is not a prefix", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got := ParsePrefixes(tt.subject)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePrefixes mismatch (-want +got):\n%s", diff)
			}
		})
	}
	assert.True(t, ParsePrefixes("BACKPORT: UPSTREAM: x").Backport())
	assert.Equal(t, "BACKPORT: FROMLIST", ParsePrefixes("BACKPORT: FROMLIST: x").String())
}

func TestSelector_Priority(t *testing.T) {
	deps := testDeps(newFakeGit(), nil)
	withHound := NewSelector(deps, true)
	without := NewSelector(deps, false)

	tests := []struct {
		subject string
		want    string
		plain   string
	}{
		{"FROMLIST: a", "fromlist", "fromlist"},
		{"BACKPORT: FROMLIST: a", "fromlist", "fromlist"},
		{"FROMGIT: a", "fromgit", "fromgit"},
		{"BACKPORT: FROMGIT: a", "fromgit", "fromgit"},
		{"UPSTREAM: a", "upstream", "upstream"},
		{"BACKPORT: a", "upstream", "upstream"},
		{"CHROMIUM: a", "chromium", ""},
		{"UPSTREAM: CHROMIUM: a", "upstream", "upstream"},
		{"drm: a", "", ""},
	}
	name := func(s Strategy) string {
		if s == nil {
			return ""
		}
		return s.Name()
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			c := testChange(tt.subject, fields)
			assert.Equal(t, tt.want, name(withHound.Select(c)))
			assert.Equal(t, tt.plain, name(without.Select(c)))

			applicable := 0
			for _, s := range withHound.Strategies() {
				if s.CanReview(c) {
					applicable++
				}
			}
			assert.LessOrEqual(t, applicable, 1, "strategies are mutually exclusive")
		})
	}
}

func TestUpstream_Matches(t *testing.T) {
	c := testChange("UPSTREAM: usb: hub: fix", fields+"\n(cherry picked from commit "+upstreamSHA+")\n")
	res, err := runReview(t, testDeps(newFakeGit(), nil), c)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []Kind{Success}, res.Kinds())
	assert.Equal(t, 0, res.Vote())
	assert.Equal(t, NotifyNone, res.Notify())
	assert.Contains(t, res.Message(), "This change matches the content it claims to derive from.")
}

func TestUpstream_Altered(t *testing.T) {
	git := newFakeGit()
	git.diffs[candidateSHA] = alteredDiff

	c := testChange("UPSTREAM: usb: hub: fix", fields+"(cherry picked from commit "+upstreamSHA+")\n")
	res, err := runReview(t, testDeps(git, nil), c)
	require.NoError(t, err)

	assert.Equal(t, []Kind{AlteredUpstream}, res.Kinds())
	assert.Equal(t, -1, res.Vote())
	assert.Equal(t, NotifyOwnerReviewers, res.Notify())
	assert.Contains(t, res.Detail(AlteredUpstream), "+\tint g;")
	assert.Contains(t, res.Message(), "Found 1 issue")
}

func TestUpstream_BackportReportsDifferences(t *testing.T) {
	git := newFakeGit()
	git.diffs[candidateSHA] = alteredDiff

	c := testChange("BACKPORT: usb: hub: fix", fields+"(cherry picked from commit "+upstreamSHA+")\n")
	res, err := runReview(t, testDeps(git, nil), c)
	require.NoError(t, err)

	assert.Equal(t, []Kind{Backport}, res.Kinds())
	assert.Equal(t, 0, res.Vote())
	assert.Equal(t, NotifyOwner, res.Notify())
	assert.Contains(t, res.Detail(Backport), "+\tint g;")
}

func TestUpstream_ReferenceProblems(t *testing.T) {
	t.Run("missing hash", func(t *testing.T) {
		res, err := runReview(t, testDeps(newFakeGit(), nil), testChange("UPSTREAM: a", fields))
		require.NoError(t, err)
		assert.Equal(t, []Kind{MissingHash}, res.Kinds())
	})

	t.Run("backport missing hash", func(t *testing.T) {
		res, err := runReview(t, testDeps(newFakeGit(), nil), testChange("BACKPORT: usb: hub: fix", fields))
		require.NoError(t, err)
		assert.Equal(t, []Kind{MissingHash}, res.Kinds())
		assert.Equal(t, -1, res.Vote())
		assert.Equal(t, NotifyOwnerReviewers, res.Notify())
	})

	t.Run("invalid hash", func(t *testing.T) {
		c := testChange("UPSTREAM: a", fields+"(cherry picked from commit 0123456789ab)\n")
		res, err := runReview(t, testDeps(newFakeGit(), nil), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{InvalidHash}, res.Kinds())
	})

	t.Run("not in mainline", func(t *testing.T) {
		git := newFakeGit()
		git.ancestors = map[string]bool{}
		c := testChange("UPSTREAM: a", fields+"(cherry picked from commit "+upstreamSHA+")\n")
		res, err := runReview(t, testDeps(git, nil), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{IncorrectPrefix}, res.Kinds())
		assert.Contains(t, res.Detail(IncorrectPrefix), "FROMGIT")
	})

	t.Run("missing fields", func(t *testing.T) {
		c := testChange("UPSTREAM: a", "TEST=boot\n(cherry picked from commit "+upstreamSHA+")\n")
		res, err := runReview(t, testDeps(newFakeGit(), nil), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{MissingFields}, res.Kinds())
		assert.Contains(t, res.Detail(MissingFields), "BUG=")
		assert.NotContains(t, res.Detail(MissingFields), "TEST=")
	})
}

func TestUpstream_FixesReported(t *testing.T) {
	git := newFakeGit()
	git.fixes[upstreamSHA+" upstream/master"] = []models.Commit{{SHA: "abcdef0123456789", Subject: "usb: hub: fix the fix"}}

	c := testChange("UPSTREAM: a", fields+"(cherry picked from commit "+upstreamSHA+")\n")
	res, err := runReview(t, testDeps(git, nil), c)
	require.NoError(t, err)

	assert.Equal(t, []Kind{FixesRef}, res.Kinds())
	assert.Equal(t, 0, res.Vote())
	assert.Contains(t, res.Detail(FixesRef), `abcdef012345 ("usb: hub: fix the fix")`)
}

func TestUpstream_UnparseableDiff(t *testing.T) {
	git := newFakeGit()
	git.diffs[candidateSHA] = "diff --git a/x b/x\ngarbage line\n"

	c := testChange("UPSTREAM: a", fields+"(cherry picked from commit "+upstreamSHA+")\n")
	_, err := runReview(t, testDeps(git, nil), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, patch.ErrUnclassified)
}

const maintainerRemote = "git://git.kernel.org/pub/scm/linux/kernel/git/gregkh/usb.git"

func fromGitChange() *models.Change {
	return testChange("FROMGIT: usb: hub: fix", fields+"(cherry picked from commit "+upstreamSHA+"\n "+maintainerRemote+" usb-next)\n")
}

func TestFromGit(t *testing.T) {
	t.Run("matches", func(t *testing.T) {
		git := newFakeGit()
		git.fetched[maintainerRemote+" usb-next"] = "eeee"
		git.ancestors[upstreamSHA+" eeee"] = true
		git.fixes[upstreamSHA+" eeee"] = []models.Commit{{SHA: "1234", Subject: "fix"}}

		res, err := runReview(t, testDeps(git, nil), fromGitChange())
		require.NoError(t, err)
		assert.Equal(t, []Kind{FixesRef}, res.Kinds())
	})

	t.Run("missing reference", func(t *testing.T) {
		c := testChange("FROMGIT: a", fields+"(cherry picked from commit "+upstreamSHA+")\n")
		res, err := runReview(t, testDeps(newFakeGit(), nil), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{MissingHash}, res.Kinds())
	})

	t.Run("branch cannot be fetched", func(t *testing.T) {
		res, err := runReview(t, testDeps(newFakeGit(), nil), fromGitChange())
		require.NoError(t, err)
		assert.Equal(t, []Kind{InvalidHash}, res.Kinds())
	})

	t.Run("commit not on branch", func(t *testing.T) {
		git := newFakeGit()
		git.fetched[maintainerRemote+" usb-next"] = "eeee"
		res, err := runReview(t, testDeps(git, nil), fromGitChange())
		require.NoError(t, err)
		assert.Equal(t, []Kind{InvalidHash}, res.Kinds())
	})

	t.Run("change cannot be fetched", func(t *testing.T) {
		git := newFakeGit()
		delete(git.fetched, reviewHost+" "+changeRef)
		_, err := runReview(t, testDeps(git, nil), fromGitChange())
		assert.Error(t, err)
	})
}

func TestFromGit_RejectsUnsafeReference(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		branch string
	}{
		{"option as remote", "--upload-pack=touch${IFS}/tmp/ran", "."},
		{"option as branch", maintainerRemote, "--upload-pack=x"},
		{"ext transport", "ext::sh", "master"},
		{"local path", "/srv/kernel.git", "master"},
		{"ssh url", "ssh://host/repo", "master"},
		{"range as branch", "origin", "a..b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			git := newFakeGit()
			c := testChange("FROMGIT: a", fields+"(cherry picked from commit "+upstreamSHA+"\n "+tt.remote+" "+tt.branch+")\n")

			res, err := runReview(t, testDeps(git, nil), c)
			require.NoError(t, err)
			assert.Equal(t, []Kind{InvalidHash}, res.Kinds())
			assert.Equal(t, -1, res.Vote())
			assert.Empty(t, git.fetches, "nothing may be fetched")
		})
	}

	for _, remote := range []string{maintainerRemote, "https://git.kernel.org/pub/scm/linux/kernel/git/next/linux-next.git", "usb"} {
		assert.True(t, validRemote(remote), remote)
	}
	for _, branch := range []string{"usb-next", "for-5.7/drivers", "v5.6-rc1"} {
		assert.True(t, validBranch(branch), branch)
	}
}

const amLink = "https://patchwork.kernel.org/patch/11234567/"

func TestFromList(t *testing.T) {
	t.Run("matches", func(t *testing.T) {
		c := testChange("FROMLIST: usb: hub: fix", fields+"(am from "+amLink+")\n")
		res, err := runReview(t, testDeps(newFakeGit(), fakePatches{amLink: referenceDiff}), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{Success}, res.Kinds())
	})

	t.Run("backport differs", func(t *testing.T) {
		git := newFakeGit()
		git.diffs[candidateSHA] = alteredDiff
		c := testChange("BACKPORT: FROMLIST: usb: hub: fix", fields+"(am from "+amLink+")\n")
		res, err := runReview(t, testDeps(git, fakePatches{amLink: referenceDiff}), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{Backport}, res.Kinds())
	})

	t.Run("missing am", func(t *testing.T) {
		c := testChange("FROMLIST: usb: hub: fix", "TEST=boot\n")
		res, err := runReview(t, testDeps(newFakeGit(), fakePatches{}), c)
		require.NoError(t, err)
		assert.Equal(t, []Kind{MissingFields, MissingAm}, res.Kinds())
		assert.Equal(t, 2, len(res.Issues()))
		assert.Contains(t, res.Message(), "Found 2 issues")
	})

	t.Run("patch gone", func(t *testing.T) {
		c := testChange("FROMLIST: usb: hub: fix", fields+"(am from "+amLink+")\n")
		res, err := runReview(t, testDeps(newFakeGit(), fakePatches{}), c)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("archive error", func(t *testing.T) {
		c := testChange("FROMLIST: usb: hub: fix", fields+"(am from "+amLink+")\n")
		deps := testDeps(newFakeGit(), nil)
		deps.Patches = failingPatches{err: &mailpatch.FetchError{URL: amLink, Status: 500}}
		_, err := runReview(t, deps, c)
		var fe *mailpatch.FetchError
		assert.True(t, errors.As(err, &fe))
	})
}

type failingPatches struct{ err error }

func (p failingPatches) FetchPatch(context.Context, string) (string, error) { return "", p.err }

const configDiff = `diff --git a/chromeos/config/chromeos/base.config b/chromeos/config/chromeos/base.config
index 1111111..2222222 100644
--- a/chromeos/config/chromeos/base.config
+++ b/chromeos/config/chromeos/base.config
@@ -10,0 +11 @@
+CONFIG_USB_NET_CDC_NCM=m
`

func TestChromium(t *testing.T) {
	t.Run("config change", func(t *testing.T) {
		git := newFakeGit()
		git.diffs[candidateSHA] = configDiff
		res, err := runReview(t, testDeps(git, nil), testChange("CHROMIUM: config: enable NCM", fields))
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, []Kind{KconfigChange}, res.Kinds())
		assert.Equal(t, NotifyOwner, res.Notify())
		assert.Contains(t, res.Detail(KconfigChange), "CONFIG_USB_NET_CDC_NCM=m")
	})

	t.Run("no config effect", func(t *testing.T) {
		res, err := runReview(t, testDeps(newFakeGit(), nil), testChange("CHROMIUM: usb: local hack", fields))
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestStrategiesDoNotMutateChange(t *testing.T) {
	git := newFakeGit()
	git.diffs[candidateSHA] = alteredDiff
	c := testChange("UPSTREAM: usb: hub: fix", fields+"(cherry picked from commit "+upstreamSHA+")\n")
	before := *c
	beforeRev := *c.Current

	_, err := runReview(t, testDeps(git, nil), c)
	require.NoError(t, err)
	assert.Equal(t, before.Subject, c.Subject)
	assert.Equal(t, beforeRev, *c.Current)
	assert.Empty(t, c.Messages)
}
