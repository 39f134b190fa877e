package acquisition

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

const sampleQueueSize = 512

type request struct {
	fn   func(*Engine)
	done chan struct{}
}

// Loop serializes all Engine access onto the goroutine running Run. Sensor
// drivers, the debug noise generator and the HTTP layer all go through it.
type Loop struct {
	engine  *Engine
	clock   timeutil.Clock
	samples chan sensor.Sample
	reqs    chan request
	stopped chan struct{}

	noiseMu sync.Mutex
	noise   *noiseRun
}

// NewLoop wraps engine. The engine must not be used directly afterwards.
func NewLoop(engine *Engine, clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		engine:  engine,
		clock:   clock,
		samples: make(chan sensor.Sample, sampleQueueSize),
		reqs:    make(chan request),
		stopped: make(chan struct{}),
	}
}

// Run processes samples and requests until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	defer l.StopNoise()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-l.samples:
			if err := l.engine.AddSample(s); err != nil {
				logf("dropping sample: %v", err)
			}
		case r := <-l.reqs:
			r.fn(l.engine)
			close(r.done)
		}
	}
}

// Submit queues s for ingestion. It blocks only while the queue is full.
func (l *Loop) Submit(ctx context.Context, s sensor.Sample) error {
	select {
	case l.samples <- s:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) do(ctx context.Context, fn func(*Engine)) error {
	r := request{fn: fn, done: make(chan struct{})}
	select {
	case l.reqs <- r:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the request always completes; Run never abandons it.
	<-r.done
	return nil
}

// Snapshot generates a snapshot after every sample queued so far has been
// ingested.
func (l *Loop) Snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap *Snapshot
		err  error
	)
	if doErr := l.do(ctx, func(e *Engine) {
		l.drain(e)
		snap, err = e.GenerateSnapshot()
	}); doErr != nil {
		return nil, doErr
	}
	return snap, err
}

// LastSample returns the latest sample seen on ch.
func (l *Loop) LastSample(ctx context.Context, ch sensor.Channel) (sensor.Sample, bool, error) {
	var (
		s  sensor.Sample
		ok bool
	)
	err := l.do(ctx, func(e *Engine) {
		l.drain(e)
		s, ok = e.LastSample(ch)
	})
	return s, ok, err
}

// LastSamples returns the latest sample of every channel seen so far.
func (l *Loop) LastSamples(ctx context.Context) (map[sensor.Channel]sensor.Sample, error) {
	out := make(map[sensor.Channel]sensor.Sample)
	err := l.do(ctx, func(e *Engine) {
		l.drain(e)
		for _, ch := range sensor.All() {
			if s, ok := e.LastSample(ch); ok {
				out[ch] = s
			}
		}
	})
	return out, err
}

// Window returns the engine's window length.
func (l *Loop) Window() time.Duration { return l.engine.Window() }

func (l *Loop) drain(e *Engine) {
	for {
		select {
		case s := <-l.samples:
			if err := e.AddSample(s); err != nil {
				logf("dropping sample: %v", err)
			}
		default:
			return
		}
	}
}
