package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kilupskalvis/patchtroll/internal/gerrit"
	"github.com/kilupskalvis/patchtroll/internal/models"
	"github.com/kilupskalvis/patchtroll/internal/review"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testTag = "autogenerated:review-o-matic"

// fakeService implements ReviewService in memory.
type fakeService struct {
	mu sync.Mutex

	byPrefix map[string][]*models.Change
	queryErr error
	queries  []gerrit.Query

	changes map[string]*models.Change

	postErr error
	posted  []postedReview
}

type postedReview struct {
	change int
	input  *gerrit.ReviewInput
}

func newFakeService() *fakeService {
	return &fakeService{
		byPrefix: make(map[string][]*models.Change),
		changes:  make(map[string]*models.Change),
	}
}

func (f *fakeService) QueryChanges(_ context.Context, q gerrit.Query) ([]*models.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.byPrefix[strings.TrimSuffix(q.Message, ":")], nil
}

func (f *fakeService) GetChange(_ context.Context, id string) (*models.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.changes[id]
	if !ok {
		return nil, &gerrit.RemoteError{Status: 404, Message: "Not found: " + id}
	}
	return c, nil
}

func (f *fakeService) PostReview(_ context.Context, c *models.Change, in *gerrit.ReviewInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, postedReview{change: c.Number, input: in})
	return nil
}

// failingQueryService fails queries for one subject prefix.
type failingQueryService struct {
	*fakeService
	failOn string
}

func (f *failingQueryService) QueryChanges(ctx context.Context, q gerrit.Query) ([]*models.Change, error) {
	if q.Message == f.failOn {
		return nil, &gerrit.RemoteError{Status: 503, Message: "unavailable"}
	}
	return f.fakeService.QueryChanges(ctx, q)
}

func (f *fakeService) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

func (f *fakeService) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeStrategy reviews every change whose subject starts with prefix.
type fakeStrategy struct {
	prefix string
	review func(c *models.Change) (*review.Result, error)
	calls  int
}

func (s *fakeStrategy) Name() string { return "fake-" + s.prefix }

func (s *fakeStrategy) CanReview(c *models.Change) bool {
	return strings.HasPrefix(c.Subject, s.prefix+":")
}

func (s *fakeStrategy) Review(_ context.Context, c *models.Change) (*review.Result, error) {
	s.calls++
	return s.review(c)
}

// withKinds returns a review func that records the given kinds.
func withKinds(kinds ...review.Kind) func(c *models.Change) (*review.Result, error) {
	return func(c *models.Change) (*review.Result, error) {
		res := review.NewResult(c)
		for _, k := range kinds {
			res.Add(k, "detail for "+k.String())
		}
		return res, nil
	}
}

// fakeLedger implements Ledger in memory.
type fakeLedger struct {
	records []*models.ReviewRecord
	seen    map[int]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[int]int)}
}

func (l *fakeLedger) RecordReview(r *models.ReviewRecord) error {
	l.records = append(l.records, r)
	return nil
}

func (l *fakeLedger) MarkSeen(change, revision int) error {
	l.seen[change] = revision
	return nil
}

func (l *fakeLedger) LoadBlacklist() (map[int]int, error) {
	out := make(map[int]int, len(l.seen))
	for c, r := range l.seen {
		out[c] = r
	}
	return out, nil
}

// newChange builds a change at the given revision.
func newChange(number, revision int, subject string) *models.Change {
	rev := &models.Revision{
		Number: revision,
		SHA:    fmt.Sprintf("%040d", number*100+revision),
		Ref:    fmt.Sprintf("refs/changes/%02d/%d/%d", number%100, number, revision),
		Commit: &models.Commit{Subject: subject, Message: subject + "\n\nBUG=b:1\nTEST=none\n"},
	}
	return &models.Change{
		Number:    number,
		Subject:   subject,
		URL:       fmt.Sprintf("https://review.example.org/c/kernel/+/%d", number),
		Current:   rev,
		Revisions: []*models.Revision{rev},
	}
}

// newTestOrchestrator wires an orchestrator with silent logging and captured output.
func newTestOrchestrator(t *testing.T, svc ReviewService, opts Options, strategies ...review.Strategy) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	if opts.Tag == "" {
		opts.Tag = testTag
	}
	if opts.Window == 0 {
		opts.Window = 5 * 24 * time.Hour
	}
	o := New(svc, review.NewSelectorOf(strategies...), opts)
	var out bytes.Buffer
	o.Out = &out
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	o.Now = func() time.Time { return time.Date(2020, 3, 10, 12, 0, 0, 0, time.UTC) }
	return o, &out
}
