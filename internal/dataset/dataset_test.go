package dataset

import (
	"errors"
	"log"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/fsutil"
	"github.com/banshee-data/stress.report/internal/monitoring"
)

const path = "/data/dataset.json"

func sample(end float64) features.ModelSample {
	return features.ModelSample{
		GSRMean:          2.1,
		GSRLocals:        14,
		HRMean:           72.5,
		HRMeanDerivative: -0.25,
		TimestampBeg:     end - 120,
		TimestampEnd:     end,
	}
}

func testRNG() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }

func TestAppend_PersistsAndCounts(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	d := New[float64](mfs, path)

	require.NoError(t, d.Append(sample(100), 1))
	assert.Equal(t, 1, d.ClassCount(1))
	require.NoError(t, d.Append(sample(200), 1))
	require.NoError(t, d.Append(sample(300), 0))

	assert.Equal(t, 2, d.ClassCount(1))
	assert.Equal(t, 1, d.ClassCount(0))
	assert.Equal(t, 3, d.Len())
	assert.True(t, d.Exists())

	loaded := Load[float64](mfs, path)
	assert.Equal(t, d.Couples(), loaded.Couples())
}

func TestRoundTrip(t *testing.T) {
	dup := sample(500)
	tests := []struct {
		name    string
		couples []Couple[float64]
	}{
		{"empty", nil},
		{"one", []Couple[float64]{{Sample: sample(1), Label: 1}}},
		{"duplicates", []Couple[float64]{{dup, 1}, {dup, 1}, {dup, 0}, {sample(2), 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			d := New[float64](mfs, path)
			for _, c := range tt.couples {
				require.NoError(t, d.Append(c.Sample, c.Label))
			}
			require.NoError(t, d.Save())

			loaded := Load[float64](mfs, path)
			if diff := cmp.Diff(d.Couples(), loaded.Couples()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileFormat(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	d := New[float64](mfs, path)
	require.NoError(t, d.Append(sample(1120), 1))

	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"couples":[{"sample":{"gsrMean":2.1,"gsrLocals":14,"hrMean":72.5,
		"hrMeanDerivative":-0.25,"timestampBeg":1000,"timestampEnd":1120},"label":1}]}`, string(data))
}

func TestLoad_MissingOrCorrupt(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	mfs := fsutil.NewMemoryFileSystem()
	assert.Equal(t, 0, Load[float64](mfs, path).Len())

	require.NoError(t, mfs.WriteFile(path, []byte("{not json"), 0o644))
	d := Load[float64](mfs, path)
	assert.Equal(t, 0, d.Len())

	// The next append replaces the corrupt file.
	require.NoError(t, d.Append(sample(1), 0))
	assert.Equal(t, 1, Load[float64](mfs, path).Len())
}

func TestAppend_PersistenceFailureKeepsMemory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	d := New[float64](mfs, path)
	require.NoError(t, d.Append(sample(1), 0))

	mfs.FailWrites(errors.New("read-only"))
	err := d.Append(sample(2), 1)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "write", pe.Op)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1, d.ClassCount(1))

	// The file still holds the last good state.
	assert.Equal(t, 1, Load[float64](mfs, path).Len())
}

func TestBalanced(t *testing.T) {
	d := New[float64](fsutil.NewMemoryFileSystem(), path)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Append(sample(float64(i)), 1))
	}
	require.NoError(t, d.Append(sample(10), 0))

	b, err := d.Balanced(testRNG(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, b.ClassCount(1))
	assert.Equal(t, 3, b.ClassCount(0))
	assert.Equal(t, 6, b.Len())
	assert.Empty(t, b.Path())

	// Original untouched.
	assert.Equal(t, 3, d.ClassCount(1))
	assert.Equal(t, 1, d.ClassCount(0))
	assert.Equal(t, 4, d.Len())

	// Duplicates come from the minority class.
	for _, c := range b.Couples()[4:] {
		assert.Equal(t, 0.0, c.Label)
		assert.Equal(t, sample(10), c.Sample)
	}
}

func TestBalanced_AlreadyBalanced(t *testing.T) {
	d := New[float64](nil, "")
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Append(sample(float64(i)), float64(i%2)))
	}
	b, err := d.Balanced(testRNG(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, d.Couples(), b.Couples())
	assert.Equal(t, 2, b.ClassCount(0))
	assert.Equal(t, 2, b.ClassCount(1))
}

func TestBalanced_EmptyClass(t *testing.T) {
	d := New[float64](nil, "")
	require.NoError(t, d.Append(sample(1), 1))
	_, err := d.Balanced(testRNG(), 0, 1)
	assert.True(t, errors.Is(err, ErrEmptyClass))
}

func TestChronologicalAndLatest(t *testing.T) {
	d := New[string](nil, "")
	_, ok := d.Latest()
	assert.False(t, ok)

	require.NoError(t, d.Append(sample(30), "c"))
	require.NoError(t, d.Append(sample(10), "a"))
	require.NoError(t, d.Append(sample(20), "b"))

	var labels []string
	for _, c := range d.Chronological() {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"a", "b", "c"}, labels)

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", latest.Label)
	assert.Equal(t, "c", d.Couples()[0].Label, "append order is preserved")
}

func TestSamplesAheadOf(t *testing.T) {
	d := New[float64](nil, "")
	for _, end := range []float64{100, 200, 300} {
		require.NoError(t, d.Append(sample(end), 0))
	}
	assert.Equal(t, 3, d.SamplesAheadOf(time.Time{}))
	assert.Equal(t, 1, d.SamplesAheadOf(time.Unix(200, 0)))
	assert.Equal(t, 0, d.SamplesAheadOf(time.Unix(300, 0)))
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dataset_energy.json")
	d := New[float64](fsutil.OSFileSystem{}, p)
	require.NoError(t, d.Append(sample(1), 0.4))
	require.True(t, d.Exists())

	require.NoError(t, d.Delete())
	assert.False(t, d.Exists())
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, d.ClassCount(0.4))
	require.NoError(t, d.Delete())
}
