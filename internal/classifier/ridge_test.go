package classifier

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stress.report/internal/fsutil"
)

// separable returns n samples per class: stressed windows have higher skin
// conductance and heart rate.
func separable(n int) TrainingData {
	rng := rand.New(rand.NewPCG(3, 5))
	var d TrainingData
	for i := 0; i < n; i++ {
		d.Samples = append(d.Samples, []float64{1 + rng.Float64(), 5 + rng.Float64(), 65 + rng.Float64()*5, rng.Float64() - 0.5})
		d.Labels = append(d.Labels, 0)
		d.Samples = append(d.Samples, []float64{4 + rng.Float64(), 20 + rng.Float64(), 90 + rng.Float64()*5, rng.Float64() - 0.5})
		d.Labels = append(d.Labels, 1)
	}
	return d
}

func TestRidge_Classification(t *testing.T) {
	r := Ridge{}
	a, err := r.Train(context.Background(), separable(10))
	require.NoError(t, err)

	got, err := a.Predict([]float64{1.5, 5.5, 66, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	got, err = a.Predict([]float64{4.5, 21, 92, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = a.Predict([]float64{1})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestRidge_Regression(t *testing.T) {
	var d TrainingData
	d.Kind = Regression
	for i := 0; i < 50; i++ {
		x := float64(i) / 10
		d.Samples = append(d.Samples, []float64{x, 1})
		d.Labels = append(d.Labels, 0.5*x+0.1)
	}
	a, err := Ridge{Lambda: 1e-6}.Train(context.Background(), d)
	require.NoError(t, err)

	got, err := a.Predict([]float64{2, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.1, got, 1e-3)
}

func TestRidge_ColumnLayoutMatchesRows(t *testing.T) {
	rows := separable(4)
	cols := TrainingData{Samples: transpose(rows.Samples), Labels: rows.Labels, Layout: ColumnLayout}

	a, err := Ridge{}.Train(context.Background(), rows)
	require.NoError(t, err)
	b, err := Ridge{}.Train(context.Background(), cols)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("layouts disagree (-rows +cols):\n%s", diff)
	}
}

func TestRidge_InvalidData(t *testing.T) {
	ctx := context.Background()
	_, err := Ridge{}.Train(ctx, TrainingData{})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Ridge{}.Train(ctx, TrainingData{Samples: [][]float64{{1, 2}}, Labels: []float64{1, 0}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Ridge{}.Train(ctx, TrainingData{Samples: [][]float64{{1, 2}, {1}}, Labels: []float64{1, 0}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Ridge{}.Train(cancelled, separable(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRidge_SaveLoad(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	r := Ridge{FS: mfs}
	a, err := r.Train(context.Background(), separable(5))
	require.NoError(t, err)

	require.NoError(t, r.Save(a, "/models/svm.json"))
	loaded, err := r.Load("/models/svm.json")
	require.NoError(t, err)
	if diff := cmp.Diff(a, loaded); diff != "" {
		t.Errorf("artifact round trip (-want +got):\n%s", diff)
	}

	_, err = r.Load("/models/missing.json")
	assert.Error(t, err)

	require.NoError(t, mfs.WriteFile("/models/bad.json", []byte(`{"weights":[]}`), 0o644))
	_, err = r.Load("/models/bad.json")
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

type otherArtifact struct{}

func (otherArtifact) Predict([]float64) (float64, error) { return 0, nil }

func TestRidge_SaveRejectsForeignArtifact(t *testing.T) {
	assert.Error(t, Ridge{FS: fsutil.NewMemoryFileSystem()}.Save(otherArtifact{}, "/x.json"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "classification", Classification.String())
	assert.Equal(t, "regression", Regression.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}
