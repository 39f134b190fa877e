package acquisition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

var epoch = time.Unix(1700000000, 0)

func newTestEngine(t *testing.T, clock timeutil.Clock, tracked ...sensor.Channel) *Engine {
	t.Helper()
	e, err := NewEngine(Options{Clock: clock, Tracked: tracked})
	require.NoError(t, err)
	return e
}

// fill pushes n samples of ch spread uniformly across the window ending at end.
func fill(t *testing.T, e *Engine, ch sensor.Channel, n int, end time.Time, noise bool) {
	t.Helper()
	endSec := timeutil.UnixSeconds(end)
	step := e.Window().Seconds() / float64(n)
	for i := 0; i < n; i++ {
		ts := endSec - e.Window().Seconds() + step*float64(i+1)
		require.NoError(t, e.AddSample(sensor.Sample{Value: float64(i), Timestamp: ts, Channel: ch, IsNoise: noise}))
	}
}

func TestCapacityAndMinSamples(t *testing.T) {
	assert.Equal(t, 504, Capacity(sensor.GSR, DefaultWindow))
	assert.Equal(t, 8160, Capacity(sensor.BVP, DefaultWindow))
	assert.Equal(t, 132, Capacity(sensor.HeartRate, DefaultWindow))

	assert.Equal(t, 456, MinSamples(sensor.GSR, DefaultWindow))
	assert.Equal(t, 7200, MinSamples(sensor.BVP, DefaultWindow))
	assert.Equal(t, 108, MinSamples(sensor.HeartRate, DefaultWindow))
}

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, e.Window())
	assert.ElementsMatch(t, sensor.Tracked(), e.Tracked())

	_, err = NewEngine(Options{Window: -time.Second})
	assert.Error(t, err)
	_, err = NewEngine(Options{Tracked: []sensor.Channel{sensor.Channel(99)}})
	assert.Error(t, err)
}

func TestGenerateSnapshot_InsufficientGSR(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	e := newTestEngine(t, clock, sensor.GSR)
	fill(t, e, sensor.GSR, 400, epoch, false)

	snap, err := e.GenerateSnapshot()
	assert.Nil(t, snap)
	require.True(t, errors.Is(err, ErrInsufficientSamples))

	var ise *InsufficientSamplesError
	require.True(t, errors.As(err, &ise))
	require.Len(t, ise.Shortfalls, 1)
	assert.Equal(t, sensor.GSR, ise.Shortfalls[0].Channel)
	assert.Equal(t, 400, ise.Shortfalls[0].Got)
	assert.Equal(t, 456, ise.Shortfalls[0].Needed)
	assert.Equal(t, "valid gsr samples: 400/456 (3 Hz)", err.Error())
}

func TestGenerateSnapshot_AllOrNothing(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	e := newTestEngine(t, clock, sensor.GSR, sensor.HeartRate)
	fill(t, e, sensor.GSR, 480, epoch, false)
	fill(t, e, sensor.HeartRate, 50, epoch, false)

	snap, err := e.GenerateSnapshot()
	assert.Nil(t, snap)
	var ise *InsufficientSamplesError
	require.True(t, errors.As(err, &ise))
	require.Len(t, ise.Shortfalls, 1)
	assert.Equal(t, sensor.HeartRate, ise.Shortfalls[0].Channel)

	fill(t, e, sensor.HeartRate, 120, epoch, false)
	snap, err = e.GenerateSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Samples[sensor.GSR], 480)
	assert.NotEmpty(t, snap.ID)
}

func TestGenerateSnapshot_WindowAndOrder(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	e := newTestEngine(t, clock, sensor.HeartRate)
	end := timeutil.UnixSeconds(epoch)

	// Out of window on both sides.
	require.NoError(t, e.AddSample(sensor.Sample{Value: -1, Timestamp: end - 500, Channel: sensor.HeartRate}))
	require.NoError(t, e.AddSample(sensor.Sample{Value: -2, Timestamp: end + 5, Channel: sensor.HeartRate}))
	// In window, pushed in reverse order.
	for i := 119; i >= 0; i-- {
		require.NoError(t, e.AddSample(sensor.Sample{Value: float64(i), Timestamp: end - 119 + float64(i), Channel: sensor.HeartRate}))
	}

	snap, err := e.GenerateSnapshot()
	require.NoError(t, err)
	got := snap.Samples[sensor.HeartRate]
	require.Len(t, got, 120)
	for i, v := range got {
		assert.Equal(t, float64(i), v)
	}
	assert.InDelta(t, 120.0, snap.Length(), 1e-9)
	assert.InDelta(t, 1.0, snap.Rate(sensor.HeartRate), 1e-9)
	assert.False(t, snap.HasNoise)
}

func TestGenerateSnapshot_HasNoise(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	e := newTestEngine(t, clock, sensor.HeartRate)
	fill(t, e, sensor.HeartRate, 119, epoch, false)
	fill(t, e, sensor.HeartRate, 1, epoch, true)

	snap, err := e.GenerateSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.HasNoise)

	// Once the noisy sample leaves the window the flag clears.
	clock.Advance(DefaultWindow + time.Second)
	fill(t, e, sensor.HeartRate, 120, clock.Now(), false)
	snap, err = e.GenerateSnapshot()
	require.NoError(t, err)
	assert.False(t, snap.HasNoise)
}

func TestAddSample_UntrackedAndLast(t *testing.T) {
	e := newTestEngine(t, timeutil.NewMockClock(epoch), sensor.GSR)

	_, ok := e.LastSample(sensor.Temperature)
	assert.False(t, ok)

	s := sensor.Sample{Value: 31.5, Timestamp: 1700000000, Channel: sensor.Temperature}
	require.NoError(t, e.AddSample(s))
	got, ok := e.LastSample(sensor.Temperature)
	require.True(t, ok)
	assert.Equal(t, s, got)

	assert.Error(t, e.AddSample(sensor.Sample{Value: 1, Channel: sensor.GSR}))
}

func TestBuffer_NeverEvictsInWindowAtMaxRate(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	e := newTestEngine(t, clock, sensor.GSR)
	// 4.2 Hz for two full windows.
	end := timeutil.UnixSeconds(epoch)
	n := 2 * Capacity(sensor.GSR, DefaultWindow)
	for i := 0; i < n; i++ {
		ts := end - float64(n-1-i)/4.2
		require.NoError(t, e.AddSample(sensor.Sample{Value: 1, Timestamp: ts, Channel: sensor.GSR}))
	}
	snap, err := e.GenerateSnapshot()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(snap.Samples[sensor.GSR]), 504)
}
