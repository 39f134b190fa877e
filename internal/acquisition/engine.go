// Package acquisition buffers incoming sensor samples per channel and cuts
// validated time-window snapshots out of them.
package acquisition

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/ringbuffer"
	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// DefaultWindow is the snapshot window length.
const DefaultWindow = 2 * time.Minute

var logf = monitoring.Component("acquisition")

// Options configures an Engine.
type Options struct {
	Window  time.Duration    // defaults to DefaultWindow
	Tracked []sensor.Channel // defaults to sensor.Tracked()
	Clock   timeutil.Clock   // defaults to timeutil.RealClock
}

// Engine holds one ring buffer per tracked channel. It is not synchronized;
// all calls must come from a single goroutine (see Loop).
type Engine struct {
	window  time.Duration
	clock   timeutil.Clock
	tracked []sensor.Channel
	buffers map[sensor.Channel]*ringbuffer.Buffer[sensor.Sample]
	last    map[sensor.Channel]sensor.Sample
}

// NewEngine sizes each tracked buffer so that a channel running at its
// maximum plausible rate never evicts samples still inside the window.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("window length must be positive, got %s", opts.Window)
	}
	if len(opts.Tracked) == 0 {
		opts.Tracked = sensor.Tracked()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	e := &Engine{
		window:  opts.Window,
		clock:   opts.Clock,
		buffers: make(map[sensor.Channel]*ringbuffer.Buffer[sensor.Sample], len(opts.Tracked)),
		last:    make(map[sensor.Channel]sensor.Sample),
	}
	for _, ch := range opts.Tracked {
		if !ch.Valid() {
			return nil, fmt.Errorf("cannot track %s", ch)
		}
		if _, dup := e.buffers[ch]; dup {
			continue
		}
		buf, err := ringbuffer.New[sensor.Sample](Capacity(ch, opts.Window))
		if err != nil {
			return nil, fmt.Errorf("buffer for %s: %w", ch, err)
		}
		e.buffers[ch] = buf
		e.tracked = append(e.tracked, ch)
	}
	return e, nil
}

// Capacity is the buffer size for ch: ceil(max rate × window).
func Capacity(ch sensor.Channel, window time.Duration) int {
	return int(math.Ceil(ch.Info().Frequency.Max * window.Seconds()))
}

// MinSamples is the fewest in-window samples ch needs: ceil(min rate × window).
func MinSamples(ch sensor.Channel, window time.Duration) int {
	// Tolerate binary rounding so 3.8 Hz × 120 s needs 456, not 457.
	return int(math.Ceil(ch.Info().Frequency.Min*window.Seconds() - 1e-9))
}

// Window returns the configured window length.
func (e *Engine) Window() time.Duration { return e.window }

// Tracked returns the buffered channels.
func (e *Engine) Tracked() []sensor.Channel { return slices.Clone(e.tracked) }

// AddSample records s as the channel's last sample and, for tracked
// channels, pushes it into the channel's buffer.
func (e *Engine) AddSample(s sensor.Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.last[s.Channel] = s
	if buf, ok := e.buffers[s.Channel]; ok {
		buf.Push(s)
	}
	return nil
}

// LastSample returns the most recent sample seen on ch, tracked or not.
func (e *Engine) LastSample(ch sensor.Channel) (sensor.Sample, bool) {
	s, ok := e.last[ch]
	return s, ok
}

// GenerateSnapshot cuts the window ending now out of every tracked buffer.
// If any channel holds fewer than MinSamples, no snapshot is produced and the
// error lists every short channel.
func (e *Engine) GenerateSnapshot() (*Snapshot, error) {
	end := timeutil.UnixSeconds(e.clock.Now())
	beg := end - e.window.Seconds()

	snap := &Snapshot{
		TimestampBeg: beg,
		TimestampEnd: end,
		Samples:      make(map[sensor.Channel][]float64, len(e.tracked)),
	}
	var shortfalls []Shortfall
	for _, ch := range e.tracked {
		samples := e.buffers[ch].Slice()
		slices.SortStableFunc(samples, func(a, b sensor.Sample) int {
			switch {
			case a.Timestamp < b.Timestamp:
				return -1
			case a.Timestamp > b.Timestamp:
				return 1
			}
			return 0
		})

		values := make([]float64, 0, len(samples))
		for _, s := range samples {
			if s.Timestamp < beg || s.Timestamp > end {
				continue
			}
			values = append(values, s.Value)
			if s.IsNoise {
				snap.HasNoise = true
			}
		}
		snap.Samples[ch] = values

		if need := MinSamples(ch, e.window); len(values) < need {
			shortfalls = append(shortfalls, Shortfall{
				Channel: ch,
				Got:     len(values),
				Needed:  need,
				Rate:    float64(len(values)) / e.window.Seconds(),
			})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &InsufficientSamplesError{Shortfalls: shortfalls}
	}

	snap.ID = uuid.NewString()
	return snap, nil
}
