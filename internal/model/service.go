package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/features"
)

// Status is the display summary of a controller.
type Status struct {
	Task              string         `json:"task"`
	Kind              string         `json:"kind"`
	State             State          `json:"state"`
	Trained           bool           `json:"trained"`
	Training          bool           `json:"training"`
	CanTrain          bool           `json:"can_train"`
	TrainingBlockedBy string         `json:"training_blocked_by,omitempty"`
	Samples           int            `json:"samples"`
	Classes           map[string]int `json:"classes,omitempty"`
	Ahead             int            `json:"samples_ahead_of_training"`
	LastTraining      *time.Time     `json:"last_training,omitempty"`
	CooldownRemaining float64        `json:"cooldown_remaining_seconds"`
}

// Row is one dataset couple with its label flattened into numeric targets.
type Row struct {
	Sample  features.ModelSample
	Targets []float64
}

// Service is the label-agnostic view of a Controller used by the HTTP,
// export and remote layers. Labels cross it as JSON.
type Service interface {
	Name() string
	Status() Status
	AddSampleJSON(snap *acquisition.Snapshot, label json.RawMessage) (features.ModelSample, any, error)
	Train(ctx context.Context) error
	PredictAny(snap *acquisition.Snapshot) (any, error)
	Clear(ctx context.Context) error
	CooldownRemaining() time.Duration
	Rows() []Row
	DatasetPath() string
	ArtifactPaths() []string
}

var (
	_ Service = (*Controller[StressLevel])(nil)
	_ Service = (*Controller[EnergyLevel])(nil)
	_ Service = (*Controller[QuadrantPoint])(nil)
)

// AddSampleJSON decodes label into the task's label type and appends it like
// AddSample. Unlike AddSample it refuses samples inside the cooldown with a
// *CooldownError, checked under the same lock as the append. It returns the
// decoded label.
func (c *Controller[L]) AddSampleJSON(snap *acquisition.Snapshot, label json.RawMessage) (features.ModelSample, any, error) {
	var l L
	if err := json.Unmarshal(label, &l); err != nil {
		return features.ModelSample{}, nil, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	sample, err := c.addSample(snap, l, true)
	return sample, l, err
}

// PredictAny is Predict with the label boxed for encoding.
func (c *Controller[L]) PredictAny(snap *acquisition.Snapshot) (any, error) {
	l, err := c.Predict(snap)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Rows flattens the dataset for export.
func (c *Controller[L]) Rows() []Row {
	couples := c.Couples()
	rows := make([]Row, len(couples))
	for i, couple := range couples {
		rows[i] = Row{Sample: couple.Sample, Targets: c.task.Targets(couple.Label)}
	}
	return rows
}
