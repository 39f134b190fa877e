// Package ingest feeds samples from external sources (MQTT, BLE heart-rate
// straps, recorded FIT files) into the acquisition loop.
package ingest

import (
	"context"

	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/sensor"
)

var logf = monitoring.Component("ingest")

// Sink accepts samples. *acquisition.Loop implements it.
type Sink interface {
	Submit(ctx context.Context, s sensor.Sample) error
}
