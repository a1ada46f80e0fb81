package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/kilupskalvis/patchtroll/internal/gerrit"
	"github.com/kilupskalvis/patchtroll/internal/models"
	"github.com/kilupskalvis/patchtroll/internal/patch"
	"github.com/kilupskalvis/patchtroll/internal/review"
)

// ReviewService is the code review host the orchestrator polls and posts to.
type ReviewService interface {
	QueryChanges(ctx context.Context, q gerrit.Query) ([]*models.Change, error)
	GetChange(ctx context.Context, id string) (*models.Change, error)
	PostReview(ctx context.Context, c *models.Change, in *gerrit.ReviewInput) error
}

// Ledger keeps a durable record of reviews and seen revisions.
type Ledger interface {
	RecordReview(r *models.ReviewRecord) error
	MarkSeen(change, revision int) error
	LoadBlacklist() (map[int]int, error)
}

// Options configures a run.
type Options struct {
	Tag      string
	Project  string
	Prefixes []string
	// Window limits queries to changes updated this recently.
	Window time.Duration

	// DryRun computes and prints reviews without posting them or touching stats.
	DryRun bool
	// ForceAll reviews changes even when their revision was already seen.
	// It implies DryRun.
	ForceAll bool
	// ForceChange reviews only this change, then returns.
	ForceChange string
	Daemon      bool

	StatsFile        string
	Schedule         Schedule
	PersistBlacklist bool
}

// Orchestrator polls the review service, reviews each eligible change once per
// revision and posts the verdicts.
type Orchestrator struct {
	service   ReviewService
	selector  *review.Selector
	opts      Options
	blacklist *Blacklist
	stats     *Stats

	// Ledger is optional.
	Ledger Ledger
	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// New creates an Orchestrator.
func New(service ReviewService, selector *review.Selector, opts Options) *Orchestrator {
	if opts.ForceAll {
		opts.DryRun = true
	}
	if opts.Schedule == (Schedule{}) {
		opts.Schedule = DefaultSchedule()
	}
	return &Orchestrator{
		service:   service,
		selector:  selector,
		opts:      opts,
		blacklist: NewBlacklist(nil),
		stats:     NewStats(),
		Out:       os.Stdout,
		Logger:    slog.Default(),
		Now:       time.Now,
	}
}

// Stats returns the running outcome counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Blacklist returns the set of seen revisions.
func (o *Orchestrator) Blacklist() *Blacklist {
	return o.blacklist
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

func (o *Orchestrator) forced() bool {
	return o.opts.ForceAll || o.opts.ForceChange != ""
}

// markSeen blacklists the current revision of c.
func (o *Orchestrator) markSeen(c *models.Change) {
	o.blacklist.Add(c)
	if o.Ledger == nil || !o.opts.PersistBlacklist || o.opts.DryRun {
		return
	}
	if err := o.Ledger.MarkSeen(c.Number, c.CurrentRevisionNumber()); err != nil {
		o.Logger.Warn("failed to persist blacklist entry", "change", c.Number, "error", err)
	}
}

// ProcessChanges reviews every eligible change in order and returns how many
// verdicts were reported. Review service and content errors abort the batch;
// a change whose diff cannot be parsed is logged and skipped.
func (o *Orchestrator) ProcessChanges(ctx context.Context, changes []*models.Change) (int, error) {
	reviewed := 0
	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return reviewed, err
		}
		o.Logger.Info("processing change", "change", c.Number, "revision", c.CurrentRevisionNumber(), "url", c.URL)

		if c.HasMessage(o.opts.Tag, c.CurrentRevisionNumber()) {
			o.markSeen(c)
		}

		strategy := o.selector.Select(c)
		if strategy == nil {
			o.Logger.Debug("no strategy applies", "change", c.Number, "subject", c.Subject)
			o.markSeen(c)
			continue
		}

		if !o.forced() && o.blacklist.Contains(c) {
			o.Logger.Debug("revision already reviewed", "change", c.Number, "revision", c.CurrentRevisionNumber())
			continue
		}

		res, err := strategy.Review(ctx, c)
		if err != nil {
			if errors.Is(err, patch.ErrUnclassified) {
				o.Logger.Error("cannot parse diff, skipping change", "change", c.Number, "strategy", strategy.Name(), "error", err)
				o.markSeen(c)
				continue
			}
			return reviewed, fmt.Errorf("review change %d: %w", c.Number, err)
		}

		if res != nil {
			if err := o.report(ctx, c, res); err != nil {
				return reviewed, err
			}
			reviewed++
		} else {
			o.Logger.Debug("no verdict", "change", c.Number, "strategy", strategy.Name())
		}

		o.markSeen(c)
	}
	return reviewed, nil
}

// report prints the verdict and, unless dry-running, posts it and counts it.
func (o *Orchestrator) report(ctx context.Context, c *models.Change, res *review.Result) error {
	color.New(color.FgCyan).Fprintf(o.Out, "Review for change: %s\n", c.URL)
	fmt.Fprintf(o.Out, "  %s\n", res.Summary())

	kinds := res.Kinds()
	record := &models.ReviewRecord{
		Change:   c.Number,
		Revision: c.CurrentRevisionNumber(),
		Subject:  c.Subject,
		Vote:     res.Vote(),
		Notify:   res.Notify().String(),
		DryRun:   o.opts.DryRun,
		PostedAt: o.Now(),
	}
	for _, k := range kinds {
		record.Kinds = append(record.Kinds, k.String())
	}

	if o.opts.DryRun {
		fmt.Fprintln(o.Out, res.Message())
		fmt.Fprintln(o.Out, "------")
		o.record(record)
		return nil
	}

	in := &gerrit.ReviewInput{
		Tag:     o.opts.Tag,
		Message: res.Message(),
		Notify:  res.Notify().String(),
		Labels:  map[string]int{gerrit.CodeReviewLabel: res.Vote()},
	}
	if err := o.service.PostReview(ctx, c, in); err != nil {
		return fmt.Errorf("post review for change %d: %w", c.Number, err)
	}
	for _, k := range kinds {
		o.stats.Inc(k)
	}
	o.Logger.Info("posted review", "change", c.Number, "revision", record.Revision, "vote", record.Vote, "notify", record.Notify)
	o.record(record)
	return nil
}

func (o *Orchestrator) record(r *models.ReviewRecord) {
	if o.Ledger == nil {
		return
	}
	if err := o.Ledger.RecordReview(r); err != nil {
		o.Logger.Warn("failed to record review", "change", r.Change, "error", err)
	}
}

// Sweep queries each prefix in turn and processes its changes before moving on
// to the next one, then checkpoints stats when anything was reviewed. A change
// returned for several prefixes is processed once.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	reviewed, err := o.sweep(ctx)
	if reviewed > 0 {
		if cerr := o.checkpoint(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return reviewed, err
}

func (o *Orchestrator) sweep(ctx context.Context) (int, error) {
	after := o.Now().Add(-o.opts.Window)
	seen := make(map[int]bool)
	reviewed := 0

	for _, prefix := range o.opts.Prefixes {
		changes, err := o.service.QueryChanges(ctx, gerrit.Query{
			Status:  "open",
			Message: prefix + ":",
			After:   after,
			Project: o.opts.Project,
		})
		if err != nil {
			return reviewed, fmt.Errorf("query %s changes: %w", prefix, err)
		}

		var fresh []*models.Change
		for _, c := range changes {
			if !seen[c.Number] {
				seen[c.Number] = true
				fresh = append(fresh, c)
			}
		}
		o.Logger.Debug("sweep", "prefix", prefix, "changes", len(fresh), "blacklisted", o.blacklist.Len())

		n, err := o.ProcessChanges(ctx, fresh)
		reviewed += n
		if err != nil {
			return reviewed, err
		}
	}
	return reviewed, nil
}

// checkpoint writes the stats file, unless dry-running, and prints the summary.
func (o *Orchestrator) checkpoint() error {
	if !o.opts.DryRun && o.opts.StatsFile != "" {
		if err := o.stats.Save(o.opts.StatsFile); err != nil {
			return err
		}
	}
	fmt.Fprintf(o.Out, "--\n  %s\n\n", o.stats.Summary())
	return nil
}

// loadState restores the stats checkpoint and the persisted blacklist.
func (o *Orchestrator) loadState() error {
	if o.opts.StatsFile != "" {
		stats, created, err := LoadStats(o.opts.StatsFile)
		if err != nil {
			return err
		}
		o.stats = stats
		if created {
			if err := o.checkpoint(); err != nil {
				return err
			}
		}
	}

	if o.Ledger != nil && o.opts.PersistBlacklist {
		entries, err := o.Ledger.LoadBlacklist()
		if err != nil {
			return fmt.Errorf("load blacklist: %w", err)
		}
		o.blacklist = NewBlacklist(entries)
		o.Logger.Info("restored blacklist", "changes", len(entries))
	}
	return nil
}

// Run reviews a forced change, or sweeps once, or in daemon mode sweeps until
// ctx is cancelled. It returns the number of reviews reported.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	if o.opts.ForceChange != "" {
		c, err := o.service.GetChange(ctx, o.opts.ForceChange)
		if err != nil {
			return 0, err
		}
		fmt.Fprintf(o.Out, "Force reviewing change %s\n", c)
		return o.ProcessChanges(ctx, []*models.Change{c})
	}

	if err := o.loadState(); err != nil {
		return 0, err
	}

	total := 0
	for {
		n, err := o.Sweep(ctx)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				if o.opts.Daemon {
					return total, nil
				}
				return total, ctx.Err()
			}
			if !o.opts.Daemon || !isTransient(err) {
				return total, err
			}
			o.Logger.Warn("sweep failed, backing off", "error", err)
		}

		if !o.opts.Daemon {
			return total, nil
		}

		wait := o.opts.Schedule.Next(err)
		o.Logger.Debug("sleeping", "duration", wait)
		if err := sleep(ctx, wait); err != nil {
			return total, nil
		}
	}
}
