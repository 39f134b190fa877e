package remote

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// Sink accepts records without blocking. *Mirror implements it.
type Sink interface {
	Enqueue(rec Record) bool
}

// LabeledEntry is the payload of stress_data, energy_data and quadrant_data.
type LabeledEntry struct {
	Snapshot  *acquisition.Snapshot `json:"snapshot"`
	UserID    string                `json:"user_id"`
	Timestamp float64               `json:"timestamp"`
	Sample    features.ModelSample  `json:"sample"`
	Label     any                   `json:"label"`
	Details   json.RawMessage       `json:"details,omitempty"`
}

// UnlabeledEntry is the payload of unlabeled_data.
type UnlabeledEntry struct {
	Snapshot  *acquisition.Snapshot `json:"snapshot"`
	UserID    string                `json:"user_id"`
	Timestamp float64               `json:"timestamp"`
}

// PredictionEntry is the payload of predictions.
type PredictionEntry struct {
	Task      string                `json:"task"`
	Label     any                   `json:"label"`
	UserID    string                `json:"user_id"`
	Timestamp float64               `json:"timestamp"`
	Snapshot  *acquisition.Snapshot `json:"snapshot_json,omitempty"`
}

// ModelLogger turns model events into records for a Sink. With no user id
// every call is a no-op.
type ModelLogger struct {
	userID string
	sink   Sink
	clock  timeutil.Clock
}

func NewModelLogger(userID string, sink Sink, clock timeutil.Clock) *ModelLogger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ModelLogger{userID: userID, sink: sink, clock: clock}
}

// Enabled reports whether records are produced.
func (l *ModelLogger) Enabled() bool {
	return l != nil && l.userID != "" && l.sink != nil
}

// LabeledType maps a task name to its record type.
func LabeledType(task string) (RecordType, error) {
	switch task {
	case "stress":
		return StressData, nil
	case "energy":
		return EnergyData, nil
	case "quadrant":
		return QuadrantData, nil
	}
	return "", fmt.Errorf("no record type for task %q", task)
}

// LogLabeled records a labeled sample of task.
func (l *ModelLogger) LogLabeled(task string, snap *acquisition.Snapshot, sample features.ModelSample, label any, details json.RawMessage) error {
	if !l.Enabled() {
		return nil
	}
	typ, err := LabeledType(task)
	if err != nil {
		return err
	}
	return l.emit(typ, LabeledEntry{
		Snapshot:  snap,
		UserID:    l.userID,
		Timestamp: timeutil.UnixSeconds(l.clock.Now()),
		Sample:    sample,
		Label:     label,
		Details:   details,
	})
}

// LogUnlabeled records a snapshot without a label.
func (l *ModelLogger) LogUnlabeled(snap *acquisition.Snapshot) error {
	if !l.Enabled() {
		return nil
	}
	return l.emit(UnlabeledData, UnlabeledEntry{
		Snapshot:  snap,
		UserID:    l.userID,
		Timestamp: timeutil.UnixSeconds(l.clock.Now()),
	})
}

// LogPrediction records a prediction and, optionally, its snapshot.
func (l *ModelLogger) LogPrediction(task string, label any, snap *acquisition.Snapshot) error {
	if !l.Enabled() {
		return nil
	}
	return l.emit(Predictions, PredictionEntry{
		Task:      task,
		Label:     label,
		UserID:    l.userID,
		Timestamp: timeutil.UnixSeconds(l.clock.Now()),
		Snapshot:  snap,
	})
}

func (l *ModelLogger) emit(typ RecordType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", typ, err)
	}
	l.sink.Enqueue(Record{
		ID:        uuid.NewString(),
		UserID:    l.userID,
		Type:      typ,
		Timestamp: l.clock.Now(),
		Payload:   data,
	})
	return nil
}
