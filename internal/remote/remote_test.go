package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(log.New(io.Discard, "", 0).Printf)
	os.Exit(m.Run())
}

var epoch = time.Unix(1700000000, 0)

// memStore is an in-memory Store.
type memStore struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (s *memStore) Push(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) Pull(_ context.Context, userID string, typ RecordType) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if r.UserID == userID && r.Type == typ {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// sliceSink collects enqueued records.
type sliceSink struct {
	recs []Record
}

func (s *sliceSink) Enqueue(rec Record) bool {
	s.recs = append(s.recs, rec)
	return true
}

func testSnapshot(noise bool) *acquisition.Snapshot {
	return &acquisition.Snapshot{
		ID:           "snap-1",
		TimestampBeg: timeutil.UnixSeconds(epoch.Add(-2 * time.Minute)),
		TimestampEnd: timeutil.UnixSeconds(epoch),
		Samples:      map[sensor.Channel][]float64{sensor.GSR: {1, 2}},
		HasNoise:     noise,
	}
}

func TestMultiStore(t *testing.T) {
	a, b := &memStore{}, &memStore{err: errors.New("offline")}
	m := MultiStore{a, b}

	err := m.Push(context.Background(), Record{ID: "1", UserID: "u", Type: StressData})
	require.Error(t, err)
	assert.Equal(t, 1, a.len())

	recs, err := m.Pull(context.Background(), "u", StressData)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = MultiStore{}.Pull(context.Background(), "u", StressData)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMirror_DropsWhenFull(t *testing.T) {
	m := NewMirror(&memStore{}, 2)
	assert.True(t, m.Enqueue(Record{ID: "1"}))
	assert.True(t, m.Enqueue(Record{ID: "2"}))
	assert.False(t, m.Enqueue(Record{ID: "3"}))

	st := m.Stats()
	assert.Equal(t, int64(1), st.Dropped)
	assert.Equal(t, 2, st.Queued)
}

func TestMirror_Run(t *testing.T) {
	store := &memStore{}
	m := NewMirror(store, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for i := 0; i < 5; i++ {
		m.Enqueue(Record{ID: string(rune('a' + i)), UserID: "u", Type: Predictions})
	}
	assert.Eventually(t, func() bool { return store.len() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(5), m.Stats().Pushed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMirror_CountsFailures(t *testing.T) {
	m := NewMirror(&memStore{err: errors.New("down")}, 4)
	m.push(context.Background(), Record{ID: "x"})
	assert.Equal(t, int64(1), m.Stats().Failed)
	assert.Equal(t, int64(0), m.Stats().Pushed)
}

func TestModelLogger_DisabledWithoutUser(t *testing.T) {
	sink := &sliceSink{}
	l := NewModelLogger("", sink, timeutil.NewMockClock(epoch))
	assert.False(t, l.Enabled())
	require.NoError(t, l.LogUnlabeled(testSnapshot(false)))
	require.NoError(t, l.LogPrediction("stress", "stressed", nil))
	assert.Empty(t, sink.recs)

	var nilLogger *ModelLogger
	assert.False(t, nilLogger.Enabled())
}

func TestModelLogger_Labeled(t *testing.T) {
	sink := &sliceSink{}
	l := NewModelLogger("user-7", sink, timeutil.NewMockClock(epoch))
	sample := features.ModelSample{GSRMean: 2, HRMean: 70}

	err := l.LogLabeled("energy", testSnapshot(false), sample, 0.6, json.RawMessage(`{"sleepQuality":3}`))
	require.NoError(t, err)
	require.Len(t, sink.recs, 1)

	rec := sink.recs[0]
	assert.Equal(t, EnergyData, rec.Type)
	assert.Equal(t, "user-7", rec.UserID)
	assert.NotEmpty(t, rec.ID)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Payload, &got))
	assert.Equal(t, "user-7", got["user_id"])
	assert.Equal(t, 0.6, got["label"])
	assert.Equal(t, float64(1700000000), got["timestamp"])
	assert.Contains(t, got, "snapshot")
	assert.Contains(t, got, "sample")
	assert.Equal(t, map[string]any{"sleepQuality": float64(3)}, got["details"])

	assert.Error(t, l.LogLabeled("sleep", nil, sample, 1, nil))
}

func TestModelLogger_Prediction(t *testing.T) {
	sink := &sliceSink{}
	l := NewModelLogger("u", sink, timeutil.NewMockClock(epoch))
	require.NoError(t, l.LogPrediction("stress", "not_stressed", testSnapshot(false)))
	require.Len(t, sink.recs, 1)
	assert.Equal(t, Predictions, sink.recs[0].Type)
	assert.JSONEq(t, `"stress"`, string(mustField(t, sink.recs[0].Payload, "task")))
}

func mustField(t *testing.T, payload []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &m))
	return m[key]
}

func TestAutoLogger_Intervals(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sink := &sliceSink{}
	noisy := true
	var snapErr error
	snap := func(context.Context) (*acquisition.Snapshot, error) {
		if snapErr != nil {
			return nil, snapErr
		}
		return testSnapshot(noisy), nil
	}
	a := NewAutoLogger(NewModelLogger("u", sink, clock), snap, clock, 0, 0)
	ctx := context.Background()

	assert.False(t, a.FireIfNeeded(ctx), "inactive")
	a.Activate()
	assert.Equal(t, DefaultAutoLogMax, a.Interval())
	assert.False(t, a.FireIfNeeded(ctx), "not due yet")

	clock.Advance(16 * time.Minute)
	assert.True(t, a.FireIfNeeded(ctx))
	assert.Equal(t, 8*time.Minute, a.Interval())
	assert.Empty(t, sink.recs)

	snapErr = acquisition.ErrInsufficientSamples
	clock.Advance(8 * time.Minute)
	assert.True(t, a.FireIfNeeded(ctx))
	assert.Equal(t, 4*time.Minute, a.Interval())

	clock.Advance(4 * time.Minute)
	assert.True(t, a.FireIfNeeded(ctx))
	assert.Equal(t, 4*time.Minute, a.Interval(), "floor")

	snapErr, noisy = nil, false
	clock.Advance(4 * time.Minute)
	assert.True(t, a.FireIfNeeded(ctx))
	assert.Equal(t, DefaultAutoLogMax, a.Interval())
	require.Len(t, sink.recs, 1)
	assert.Equal(t, UnlabeledData, sink.recs[0].Type)

	a.Deactivate()
	clock.Advance(time.Hour)
	assert.False(t, a.FireIfNeeded(ctx))
}

func TestAutoLogger_Run(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sink := &sliceSink{}
	var mu sync.Mutex
	calls := 0
	snap := func(context.Context) (*acquisition.Snapshot, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return testSnapshot(true), nil
	}
	a := NewAutoLogger(NewModelLogger("u", sink, clock), snap, clock, time.Minute, 2*time.Minute)
	a.Activate()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, clock.Tickers())
}
