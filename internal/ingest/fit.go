package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/tormoder/fit"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// ReadFIT decodes an activity file into heart-rate and skin-temperature
// samples, oldest first. Invalid field values are skipped.
func ReadFIT(r io.Reader) ([]sensor.Sample, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	var out []sensor.Sample
	for _, rec := range activity.Records {
		if rec == nil || rec.Timestamp.IsZero() || fit.IsBaseTime(rec.Timestamp) {
			continue
		}
		ts := timeutil.UnixSeconds(rec.Timestamp)
		if rec.HeartRate != math.MaxUint8 {
			out = append(out, sensor.Sample{Channel: sensor.HeartRate, Value: float64(rec.HeartRate), Timestamp: ts})
		}
		if rec.Temperature != math.MaxInt8 {
			out = append(out, sensor.Sample{Channel: sensor.Temperature, Value: float64(rec.Temperature), Timestamp: ts})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// ShiftToEnd moves samples in time so the newest lands at end.
func ShiftToEnd(samples []sensor.Sample, end time.Time) []sensor.Sample {
	if len(samples) == 0 {
		return samples
	}
	last := samples[0].Timestamp
	for _, s := range samples {
		last = math.Max(last, s.Timestamp)
	}
	delta := timeutil.UnixSeconds(end) - last
	out := make([]sensor.Sample, len(samples))
	for i, s := range samples {
		s.Timestamp += delta
		out[i] = s
	}
	return out
}

// ReplayFIT reads a FIT file, shifts it to end at clock.Now() and submits
// every sample. It returns the number of samples submitted.
func ReplayFIT(ctx context.Context, r io.Reader, sink Sink, clock timeutil.Clock) (int, error) {
	samples, err := ReadFIT(r)
	if err != nil {
		return 0, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	for i, s := range ShiftToEnd(samples, clock.Now()) {
		if err := sink.Submit(ctx, s); err != nil {
			return i, err
		}
	}
	logf("replayed %d FIT samples", len(samples))
	return len(samples), nil
}
