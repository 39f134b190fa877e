package remote

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// AutoLogger defaults.
const (
	DefaultAutoLogMax  = 16 * time.Minute
	DefaultAutoLogMin  = 4 * time.Minute
	autoLogCheckPeriod = 15 * time.Second
)

// SnapshotFunc produces the current window, e.g. (*acquisition.Loop).Snapshot.
type SnapshotFunc func(ctx context.Context) (*acquisition.Snapshot, error)

// AutoLogger periodically logs one clean unlabeled snapshot. After a
// success it waits the maximum interval; after a failure (no snapshot, or a
// noisy one) it retries after half the previous interval, never less than
// the minimum.
type AutoLogger struct {
	logger   *ModelLogger
	snapshot SnapshotFunc
	clock    timeutil.Clock
	min, max time.Duration

	mu       sync.Mutex
	active   bool
	interval time.Duration
	next     time.Time
	last     time.Time
}

func NewAutoLogger(logger *ModelLogger, snapshot SnapshotFunc, clock timeutil.Clock, minInterval, maxInterval time.Duration) *AutoLogger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if minInterval <= 0 {
		minInterval = DefaultAutoLogMin
	}
	if maxInterval < minInterval {
		maxInterval = max(DefaultAutoLogMax, minInterval)
	}
	return &AutoLogger{logger: logger, snapshot: snapshot, clock: clock, min: minInterval, max: maxInterval}
}

// Activate starts logging; the first attempt happens after the max interval.
func (a *AutoLogger) Activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.setIntervalLocked(a.max)
}

func (a *AutoLogger) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
}

func (a *AutoLogger) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Interval is the current wait between attempts.
func (a *AutoLogger) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

func (a *AutoLogger) setIntervalLocked(d time.Duration) {
	a.interval = d
	a.next = a.clock.Now().Add(d)
}

// FireIfNeeded attempts a log when active and due. It reports whether an
// attempt was made.
func (a *AutoLogger) FireIfNeeded(ctx context.Context) bool {
	a.mu.Lock()
	due := a.active && !a.clock.Now().Before(a.next)
	a.mu.Unlock()
	if !due {
		return false
	}

	snap, err := a.snapshot(ctx)
	ok := err == nil && !snap.HasNoise
	if ok {
		if err := a.logger.LogUnlabeled(snap); err != nil {
			logf("autolog: %v", err)
			ok = false
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.setIntervalLocked(a.max)
	} else {
		a.setIntervalLocked(max(a.min, a.interval/2))
	}
	a.last = a.clock.Now()
	return true
}

// Run checks periodically until ctx is cancelled.
func (a *AutoLogger) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(autoLogCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			a.FireIfNeeded(ctx)
		}
	}
}
