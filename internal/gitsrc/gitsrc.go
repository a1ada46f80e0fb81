// Package gitsrc materializes commits from a local kernel checkout by invoking git.
package gitsrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// CommandError is returned when a git invocation fails.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns git's exit status, or -1 if it did not run to completion.
func (e *CommandError) ExitCode() int {
	var ee *exec.ExitError
	if errors.As(e.Err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Repo runs git against a single repository.
type Repo struct {
	Dir string
	// Git is the git binary, "git" when empty.
	Git string
}

// New returns a Repo for dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	bin := r.Git
	if bin == "" {
		bin = "git"
	}
	full := args
	if r.Dir != "" {
		full = append([]string{"-C", r.Dir}, args...)
	}

	cmd := exec.CommandContext(ctx, bin, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// check runs a git predicate: exit 0 is true, an exit status in falseCodes is false.
func (r *Repo) check(ctx context.Context, falseCodes []int, args ...string) (bool, error) {
	_, err := r.run(ctx, args...)
	if err == nil {
		return true, nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		code := ce.ExitCode()
		for _, c := range falseCodes {
			if code == c {
				return false, nil
			}
		}
	}
	return false, err
}

// Show returns the zero-context diff introduced by rev, without the commit header.
func (r *Repo) Show(ctx context.Context, rev string) (string, error) {
	return r.run(ctx, "show", "--format=", "--no-color", "--no-ext-diff", "--find-renames", "-U0", rev, "--")
}

// CommitMessage returns the raw commit message of rev.
func (r *Repo) CommitMessage(ctx context.Context, rev string) (string, error) {
	return r.run(ctx, "log", "-1", "--format=%B", rev, "--")
}

// CommitExists reports whether rev names a commit in the repository.
func (r *Repo) CommitExists(ctx context.Context, rev string) (bool, error) {
	return r.check(ctx, []int{1, 128}, "cat-file", "-e", rev+"^{commit}")
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	return r.check(ctx, []int{1}, "merge-base", "--is-ancestor", ancestor, descendant)
}

// Fetch fetches ref from remote and returns the commit it points to. remote
// and ref are never parsed as options.
func (r *Repo) Fetch(ctx context.Context, remote, ref string) (string, error) {
	if _, err := r.run(ctx, "fetch", "--quiet", "--no-tags", "--end-of-options", remote, ref); err != nil {
		return "", err
	}
	out, err := r.run(ctx, "rev-parse", "--verify", "FETCH_HEAD^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// FindFixes returns the commits after sha on ref whose message carries a
// "Fixes:" tag pointing at sha, newest first.
func (r *Repo) FindFixes(ctx context.Context, sha, ref string) ([]models.Commit, error) {
	abbrev := sha
	if len(abbrev) > 8 {
		abbrev = abbrev[:8]
	}
	out, err := r.run(ctx, "log", "--format=%H%x00%s", "--regexp-ignore-case",
		"--grep=^Fixes: *"+abbrev, sha+".."+ref, "--")
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

func parseLog(out string) []models.Commit {
	var commits []models.Commit
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		sha, subject, _ := strings.Cut(line, "\x00")
		commits = append(commits, models.Commit{SHA: sha, Subject: subject})
	}
	return commits
}
