package serialmux

import (
	"context"
	"errors"

	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/sensor"
)

var logf = monitoring.Component("serial")

// SampleSink accepts parsed samples. *acquisition.Loop implements it.
type SampleSink interface {
	Submit(ctx context.Context, s sensor.Sample) error
}

// Forward subscribes to mux and submits every parsed sample line to sink
// until ctx is cancelled or the mux closes. Malformed lines are logged and
// skipped.
func Forward(ctx context.Context, mux SerialMuxInterface, sink SampleSink) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s, err := ParseSampleLine(line)
			if errors.Is(err, ErrSkipLine) {
				continue
			}
			if err != nil {
				logf("dropping line: %v", err)
				continue
			}
			if err := sink.Submit(ctx, s); err != nil {
				return err
			}
		}
	}
}
