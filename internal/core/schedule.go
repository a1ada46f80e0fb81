package core

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/url"
	"time"

	"github.com/kilupskalvis/patchtroll/internal/gerrit"
	"github.com/kilupskalvis/patchtroll/internal/gitsrc"
	"github.com/kilupskalvis/patchtroll/internal/mailpatch"
)

// Schedule spaces out daemon sweeps.
type Schedule struct {
	// Interval is the pause after every sweep.
	Interval time.Duration
	// Cooldown is added after a sweep that failed with a transient error.
	Cooldown time.Duration
}

// DefaultSchedule sweeps every two minutes, with one more minute after a failure.
func DefaultSchedule() Schedule {
	return Schedule{Interval: 120 * time.Second, Cooldown: 60 * time.Second}
}

// Next returns how long to wait after a sweep that ended with err. A throttled
// review service reply that asks for a longer pause is honored.
func (s Schedule) Next(err error) time.Duration {
	if err == nil {
		return s.Interval
	}
	wait := s.Interval + s.Cooldown
	var re *gerrit.RemoteError
	if errors.As(err, &re) && re.RetryAfter > wait {
		wait = re.RetryAfter
	}
	return wait
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTransient reports whether a sweep failure should be retried on the next
// sweep: review service and archive replies, network and filesystem errors,
// and failed git invocations.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		remoteErr  *gerrit.RemoteError
		fetchErr   *mailpatch.FetchError
		commandErr *gitsrc.CommandError
		urlErr     *url.Error
		netErr     net.Error
		pathErr    *fs.PathError
	)
	return errors.As(err, &remoteErr) ||
		errors.As(err, &fetchErr) ||
		errors.As(err, &commandErr) ||
		errors.As(err, &urlErr) ||
		errors.As(err, &netErr) ||
		errors.As(err, &pathErr)
}
