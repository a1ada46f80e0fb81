// Package cli implements the command-line interface for patchtroll.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/patchtroll/internal/config"
	"github.com/kilupskalvis/patchtroll/internal/core"
	"github.com/kilupskalvis/patchtroll/internal/gerrit"
	"github.com/kilupskalvis/patchtroll/internal/gitsrc"
	"github.com/kilupskalvis/patchtroll/internal/kconfig"
	"github.com/kilupskalvis/patchtroll/internal/mailpatch"
	"github.com/kilupskalvis/patchtroll/internal/review"
	"github.com/kilupskalvis/patchtroll/internal/store"
)

// maxExitCode caps the reviewed count reported through the exit status.
const maxExitCode = 255

// Flags shared by every command.
var (
	configPath string
	gitDir     string
	statsFile  string
	ledgerPath string
	verbose    bool
	chatty     bool
)

// Flags of the review run.
var (
	runDaemon       bool
	runDryRun       bool
	runForceChange  string
	runForceAll     bool
	runKconfigHound bool
)

// exitCode is returned by Execute once the command finished without exiting.
var exitCode int

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Logger *slog.Logger
	Ledger *store.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Ledger != nil {
		c.Ledger.Close()
	}
}

// initContext loads the configuration, applies flag overrides and sets up logging.
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}

	if gitDir != "" {
		cfg.Review.GitDir = gitDir
	}
	if statsFile != "" {
		cfg.Daemon.StatsFile = statsFile
	}
	if ledgerPath != "" {
		cfg.Daemon.LedgerPath = ledgerPath
	}
	if runKconfigHound {
		cfg.Review.KconfigHound = true
	}

	logger := newLogger(os.Stderr, cfg.LogFormat, verbose, chatty)
	slog.SetDefault(logger)

	return &cmdContext{Config: cfg, Logger: logger}
}

// initContextWithLedger initializes the context and opens the review ledger,
// if one is configured.
func initContextWithLedger() *cmdContext {
	c := initContext()
	if c.Config.Daemon.LedgerPath == "" {
		return c
	}

	st, err := store.Open(c.Config.Daemon.LedgerPath)
	if err != nil {
		exitError("failed to open ledger: %v", err)
	}
	c.Ledger = st
	return c
}

// newLogger builds the process logger. --chatty logs at debug level, which
// includes the residual of every mismatched comparison.
func newLogger(w io.Writer, format string, verbose, chatty bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case chatty:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:   "patchtroll",
	Short: "Review kernel changes against the content they claim to derive from",
	Long: `patchtroll polls a Gerrit review host for kernel changes whose subjects
claim an origin (UPSTREAM, BACKPORT, FROMGIT, FROMLIST), compares each change
with the commit or mailed patch it names, and posts one review per revision.

Without --daemon it sweeps once and exits with the number of reviews reported.`,
	Args: cobra.NoArgs,
	Run:  runReview,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to "+config.ConfigFile)
	pf.StringVar(&gitDir, "git-dir", "", "Kernel checkout holding the upstream remotes")
	pf.StringVar(&statsFile, "stats-file", "", "Path of the statistics checkpoint")
	pf.StringVar(&ledgerPath, "ledger", "", "Path of the SQLite review ledger")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log progress")
	pf.BoolVar(&chatty, "chatty", false, "Log diffs and residuals")

	f := rootCmd.Flags()
	f.BoolVar(&runDaemon, "daemon", false, "Keep polling until interrupted")
	f.BoolVar(&runDryRun, "dry-run", false, "Print reviews instead of posting them")
	f.StringVar(&runForceChange, "force-cl", "", "Review only this change, even if already reviewed")
	f.BoolVar(&runForceAll, "force-all", false, "Review every change, even if already reviewed (implies --dry-run)")
	f.BoolVar(&runKconfigHound, "kconfig-hound", false, "Also review CHROMIUM changes for kernel config impact")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runReview(cmd *cobra.Command, args []string) {
	c := initContextWithLedger()
	defer c.Close()
	cfg := c.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gerrit.NewClient(cfg.Gerrit.URL, cfg.Gerrit.Username, cfg.Gerrit.Password)
	selector := review.NewSelector(review.Deps{
		Git:          gitsrc.New(cfg.Review.GitDir),
		Patches:      mailpatch.NewFetcher(),
		Kconfig:      kconfig.NewChecker(cfg.Review.KconfigDirs...),
		Mainline:     cfg.Review.MainlineRef,
		ChangeRemote: cfg.Review.ChangeRemote,
		Logger:       c.Logger,
	}, cfg.Review.KconfigHound)

	o := core.New(client, selector, core.Options{
		Tag:              cfg.Gerrit.Tag,
		Project:          cfg.Gerrit.Project,
		Prefixes:         cfg.QueryPrefixes(),
		Window:           cfg.Window(),
		DryRun:           runDryRun,
		ForceAll:         runForceAll,
		ForceChange:      runForceChange,
		Daemon:           runDaemon,
		StatsFile:        cfg.Daemon.StatsFile,
		Schedule:         core.Schedule{Interval: cfg.Interval(), Cooldown: cfg.Cooldown()},
		PersistBlacklist: cfg.Daemon.PersistBlacklist,
	})
	o.Logger = c.Logger
	if c.Ledger != nil {
		o.Ledger = c.Ledger
	}

	c.Logger.Info("starting review run",
		"gerrit", client.BaseURL(),
		"project", cfg.Gerrit.Project,
		"prefixes", cfg.QueryPrefixes(),
		"daemon", runDaemon,
		"dry_run", o.Options().DryRun)

	n, err := o.Run(ctx)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	c.Logger.Info("review run finished", "reviewed", n)

	if c.Ledger != nil && !o.Options().DryRun {
		// A forced run starts without the persisted blacklist.
		if cfg.Daemon.PersistBlacklist && runForceChange == "" {
			if err := c.Ledger.SaveBlacklist(o.Blacklist().Snapshot()); err != nil {
				c.Logger.Warn("failed to save blacklist", "error", err)
			}
		}
		if err := c.Ledger.SetLastRun(time.Now()); err != nil {
			c.Logger.Warn("failed to record run", "error", err)
		}
	}
	exitCode = min(n, maxExitCode)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
