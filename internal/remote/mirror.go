package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/stress.report/internal/monitoring"
)

var logf = monitoring.Component("remote")

// DefaultQueueSize bounds the records waiting to be pushed.
const DefaultQueueSize = 256

const pushTimeout = 10 * time.Second

// MultiStore pushes to every store and pulls from the first.
type MultiStore []Store

func (m MultiStore) Push(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Push(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiStore) Pull(ctx context.Context, userID string, typ RecordType) ([]Record, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Pull(ctx, userID, typ)
}

// MirrorStats counts what the mirror did with enqueued records.
type MirrorStats struct {
	Pushed  int64 `json:"pushed"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Queued  int   `json:"queued"`
}

// Mirror pushes records to a Store from a single worker. Enqueue never
// blocks: when the queue is full the record is dropped and logged.
type Mirror struct {
	store Store
	queue chan Record

	pushed  atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewMirror(store Store, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Mirror{store: store, queue: make(chan Record, queueSize)}
}

// Enqueue schedules rec for pushing and reports whether it was accepted.
func (m *Mirror) Enqueue(rec Record) bool {
	select {
	case m.queue <- rec:
		return true
	default:
		m.dropped.Add(1)
		logf("queue full, dropping %s record %s", rec.Type, rec.ID)
		return false
	}
}

// Run pushes queued records until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(m.queue); n > 0 {
				logf("stopping with %d records unsent", n)
			}
			return ctx.Err()
		case rec := <-m.queue:
			m.push(ctx, rec)
		}
	}
}

func (m *Mirror) push(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := m.store.Push(ctx, rec); err != nil {
		m.failed.Add(1)
		logf("push %s record %s: %v", rec.Type, rec.ID, err)
		return
	}
	m.pushed.Add(1)
}

// Stats returns the mirror counters.
func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{
		Pushed:  m.pushed.Load(),
		Failed:  m.failed.Load(),
		Dropped: m.dropped.Load(),
		Queued:  len(m.queue),
	}
}
