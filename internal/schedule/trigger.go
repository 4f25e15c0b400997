// Package schedule runs the evaluation pass on a recurring timer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/joshsymonds/mailrules/internal/settings"
)

// ErrInvalidInterval is returned when a trigger interval is not positive.
var ErrInvalidInterval = errors.New("trigger interval must be positive")

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Trigger owns at most one recurring job. Runs never overlap.
type Trigger struct {
	Job    Job
	Logger *slog.Logger
	// Unit scales settings.AutoApplyIntervalHours; defaults to an hour.
	Unit time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// New returns a Trigger running job.
func New(job Job, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Trigger{Job: job, Logger: logger, Unit: time.Hour}
}

// Install starts running the job every interval, replacing any installed
// schedule. The first run happens one interval from now.
func (t *Trigger) Install(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, every)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel, t.done, t.interval = cancel, done, every
	go t.loop(runCtx, every, done)
	t.Logger.InfoContext(ctx, "trigger installed", "every", every)
	return nil
}

// Remove stops the installed schedule and waits for a running job to
// return. It is a no-op when nothing is installed.
func (t *Trigger) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removeLocked() {
		t.Logger.Info("trigger removed")
	}
}

// Installed reports whether a schedule is active.
func (t *Trigger) Installed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Interval returns the active schedule period, zero when none.
func (t *Trigger) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Sync reinstalls the schedule from s: removed when auto-apply is off,
// installed at the configured hour interval otherwise. A non-positive
// interval is logged and leaves the current schedule untouched.
func (t *Trigger) Sync(ctx context.Context, s settings.Settings) error {
	if s.AutoApplyIntervalHours <= 0 {
		t.Logger.ErrorContext(ctx, "invalid auto apply interval hours", "hours", s.AutoApplyIntervalHours)
		return fmt.Errorf("%w: %d hours", ErrInvalidInterval, s.AutoApplyIntervalHours)
	}
	t.Remove()
	if !s.EnableAutoApply {
		t.Logger.InfoContext(ctx, "auto-apply is disabled; no trigger installed")
		return nil
	}
	return t.Install(ctx, time.Duration(s.AutoApplyIntervalHours)*t.unit())
}

// Watch calls Sync with the current settings, then polls load every poll
// period and resyncs whenever the settings change. It blocks until ctx is
// done and removes the schedule before returning.
func (t *Trigger) Watch(ctx context.Context, load func(context.Context) (settings.Settings, error), poll time.Duration) error {
	if poll <= 0 {
		return fmt.Errorf("%w: poll %s", ErrInvalidInterval, poll)
	}
	defer t.Remove()

	var (
		applied settings.Settings
		synced  bool
	)
	check := func() {
		current, err := load(ctx)
		if err != nil {
			t.Logger.ErrorContext(ctx, "load settings", "error", err)
			return
		}
		if synced && current == applied {
			return
		}
		if err := t.Sync(ctx, current); err != nil {
			return
		}
		applied, synced = current, true
	}

	check()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			check()
		}
	}
}

func (t *Trigger) loop(ctx context.Context, every time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Job(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.Logger.ErrorContext(ctx, "scheduled run failed", "error", err)
			}
		}
	}
}

func (t *Trigger) removeLocked() bool {
	if t.cancel == nil {
		return false
	}
	t.cancel()
	<-t.done
	t.cancel, t.done, t.interval = nil, nil, 0
	return true
}

func (t *Trigger) unit() time.Duration {
	if t.Unit <= 0 {
		return time.Hour
	}
	return t.Unit
}
