package model

import (
	"fmt"
	"math"

	"github.com/banshee-data/stress.report/internal/classifier"
)

// Task binds a label type to its files, settings key and classifier setup.
type Task[L comparable] struct {
	Name          string
	DatasetFile   string
	ArtifactFiles []string // one backend artifact per target
	TrainingKey   string
	Kind          classifier.Kind
	// Classes lists the labels of a classification task. Training requires
	// each of them and balances the dataset across them.
	Classes  []L
	Validate func(L) error
	// Targets splits a label into one numeric target per artifact.
	Targets func(L) []float64
	// FromOutputs rebuilds a label from the artifact outputs.
	FromOutputs func([]float64) L
}

// StressLevel is the binary stress label.
type StressLevel float64

const (
	NotStressed StressLevel = 0
	Stressed    StressLevel = 1
)

func (s StressLevel) String() string {
	switch s {
	case Stressed:
		return "stressed"
	case NotStressed:
		return "not_stressed"
	}
	return fmt.Sprintf("stress(%g)", float64(s))
}

// EnergyLevel is a continuous energy score in [0, 1].
type EnergyLevel float64

// PhysicalEnergy maps the questionnaire scale onto the displayed energy:
// a level of 0.2 is full energy and 1.0 none.
func (e EnergyLevel) PhysicalEnergy() float64 {
	return 1 - (float64(e)-0.2)/0.8
}

// QuadrantPoint is a position on the valence/arousal plane, each axis in [-1, 1].
type QuadrantPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// StressTask is the binary stress classifier.
func StressTask() Task[StressLevel] {
	return Task[StressLevel]{
		Name:          "stress",
		DatasetFile:   "dataset.json",
		ArtifactFiles: []string{"svm.json"},
		TrainingKey:   "stressModel.latestTraining",
		Kind:          classifier.Classification,
		Classes:       []StressLevel{NotStressed, Stressed},
		Validate: func(l StressLevel) error {
			if l != Stressed && l != NotStressed {
				return fmt.Errorf("%w: stress level must be 0 or 1, got %g", ErrInvalidLabel, float64(l))
			}
			return nil
		},
		Targets: func(l StressLevel) []float64 { return []float64{float64(l)} },
		FromOutputs: func(out []float64) StressLevel {
			if out[0] >= 0.5 {
				return Stressed
			}
			return NotStressed
		},
	}
}

// EnergyTask is the energy-level regressor.
func EnergyTask() Task[EnergyLevel] {
	return Task[EnergyLevel]{
		Name:          "energy",
		DatasetFile:   "dataset_energy.json",
		ArtifactFiles: []string{"svr_energy.json"},
		TrainingKey:   "energyModel.latestTraining",
		Kind:          classifier.Regression,
		Validate: func(l EnergyLevel) error {
			if !inRange(float64(l), 0, 1) {
				return fmt.Errorf("%w: energy level must be within [0,1], got %g", ErrInvalidLabel, float64(l))
			}
			return nil
		},
		Targets:     func(l EnergyLevel) []float64 { return []float64{float64(l)} },
		FromOutputs: func(out []float64) EnergyLevel { return EnergyLevel(clamp(out[0], 0, 1)) },
	}
}

// QuadrantTask regresses each quadrant axis separately.
func QuadrantTask() Task[QuadrantPoint] {
	return Task[QuadrantPoint]{
		Name:          "quadrant",
		DatasetFile:   "dataset_quadrant.json",
		ArtifactFiles: []string{"svr_quadrant_x.json", "svr_quadrant_y.json"},
		TrainingKey:   "quadrantModel.latestTraining",
		Kind:          classifier.Regression,
		Validate: func(l QuadrantPoint) error {
			if !inRange(l.X, -1, 1) || !inRange(l.Y, -1, 1) {
				return fmt.Errorf("%w: quadrant point must be within [-1,1]², got (%g, %g)", ErrInvalidLabel, l.X, l.Y)
			}
			return nil
		},
		Targets: func(l QuadrantPoint) []float64 { return []float64{l.X, l.Y} },
		FromOutputs: func(out []float64) QuadrantPoint {
			return QuadrantPoint{X: clamp(out[0], -1, 1), Y: clamp(out[1], -1, 1)}
		},
	}
}
