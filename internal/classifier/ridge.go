package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stress.report/internal/fsutil"
)

// DefaultLambda is the ridge penalty used when Ridge.Lambda is zero.
const DefaultLambda = 1.0

// Ridge fits an L2-regularized linear model on standardized features.
// Classification snaps the linear output to the nearest training class.
type Ridge struct {
	Lambda float64
	FS     fsutil.FileSystem
}

// RidgeModel is the Artifact produced by Ridge.
type RidgeModel struct {
	Kind    Kind      `json:"kind"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Classes []float64 `json:"classes,omitempty"`
}

func (r Ridge) fs() fsutil.FileSystem {
	if r.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return r.FS
}

// Train solves (XᵀX + λI)w = Xᵀ(y - ȳ) on standardized columns.
func (r Ridge) Train(ctx context.Context, data TrainingData) (Artifact, error) {
	rows, err := data.Rows()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lambda := r.Lambda
	if lambda <= 0 {
		lambda = DefaultLambda
	}

	n, p := len(rows), len(rows[0])
	m := &RidgeModel{
		Kind:   data.Kind,
		Means:  make([]float64, p),
		Scales: make([]float64, p),
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.Means[j], m.Scales[j] = mean, std
	}

	x := mat.NewDense(n, p, nil)
	for i, row := range rows {
		for j, v := range row {
			x.Set(i, j, (v-m.Means[j])/m.Scales[j])
		}
	}
	m.Bias = stat.Mean(data.Labels, nil)
	y := mat.NewVecDense(n, nil)
	for i, l := range data.Labels {
		y.SetVec(i, l-m.Bias)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+lambda)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &xty); err != nil {
		return nil, fmt.Errorf("ridge solve: %w", err)
	}
	m.Weights = make([]float64, p)
	for j := range m.Weights {
		m.Weights[j] = w.AtVec(j)
	}

	if data.Kind == Classification {
		m.Classes = slices.Clone(data.Labels)
		slices.Sort(m.Classes)
		m.Classes = slices.Compact(m.Classes)
	}
	return m, ctx.Err()
}

// Predict evaluates the model on one feature vector.
func (m *RidgeModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(features), len(m.Weights))
	}
	out := m.Bias
	for j, v := range features {
		out += m.Weights[j] * (v - m.Means[j]) / m.Scales[j]
	}
	if m.Kind != Classification || len(m.Classes) == 0 {
		return out, nil
	}
	best := m.Classes[0]
	for _, c := range m.Classes[1:] {
		if math.Abs(out-c) < math.Abs(out-best) {
			best = c
		}
	}
	return best, nil
}

// Save writes a RidgeModel as JSON, replacing path atomically.
func (r Ridge) Save(a Artifact, path string) error {
	m, ok := a.(*RidgeModel)
	if !ok {
		return fmt.Errorf("ridge: cannot save %T", a)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(r.fs(), path, data, 0o644)
}

// Load reads a model written by Save.
func (r Ridge) Load(path string) (Artifact, error) {
	data, err := r.fs().ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m RidgeModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(m.Weights) == 0 || len(m.Means) != len(m.Weights) || len(m.Scales) != len(m.Weights) {
		return nil, fmt.Errorf("%w: %s is not a ridge model", ErrShapeMismatch, path)
	}
	return &m, nil
}
