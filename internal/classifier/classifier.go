// Package classifier defines the training/inference contract used by the
// model controllers and ships a ridge-regression implementation of it.
package classifier

import (
	"context"
	"errors"
	"fmt"
)

// Layout tells how TrainingData.Samples is arranged.
type Layout int

const (
	// RowLayout stores one sample per row.
	RowLayout Layout = iota
	// ColumnLayout stores one feature per row.
	ColumnLayout
)

// Kind selects between discrete and continuous outputs.
type Kind int

const (
	Classification Kind = iota
	Regression
)

func (k Kind) String() string {
	switch k {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrNoData        = errors.New("classifier: no training data")
	ErrShapeMismatch = errors.New("classifier: shape mismatch")
)

// TrainingData is the tensor handed to a Backend.
type TrainingData struct {
	Samples [][]float64
	Labels  []float64
	Layout  Layout
	Kind    Kind
}

// Rows returns the samples in row layout after checking the shape.
func (d TrainingData) Rows() ([][]float64, error) {
	rows := d.Samples
	if d.Layout == ColumnLayout {
		rows = transpose(d.Samples)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	if len(rows) != len(d.Labels) {
		return nil, fmt.Errorf("%w: %d samples, %d labels", ErrShapeMismatch, len(rows), len(d.Labels))
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: samples have no features", ErrShapeMismatch)
	}
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", ErrShapeMismatch, i, len(r), width)
		}
	}
	return rows, nil
}

func transpose(cols [][]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(cols))
		for j, col := range cols {
			if i < len(col) {
				rows[i][j] = col[i]
			}
		}
	}
	return rows
}

// Artifact is a trained model.
type Artifact interface {
	Predict(features []float64) (float64, error)
}

// Backend trains and persists Artifacts. Train may take seconds; callers run
// it off the ingestion path.
type Backend interface {
	Train(ctx context.Context, data TrainingData) (Artifact, error)
	Save(a Artifact, path string) error
	Load(path string) (Artifact, error)
}
