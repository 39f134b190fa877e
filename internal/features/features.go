// Package features turns raw signal windows into the fixed-length feature
// vector consumed by the classifiers.
package features

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/sensor"
)

// ErrNotEnoughSamples is returned when a snapshot cannot yield every feature.
var ErrNotEnoughSamples = errors.New("not enough samples to extract features")

// Peak debounce, in seconds.
const minPeakSeparation = 1.0

// Mean is the arithmetic mean. It is NaN for an empty input; callers guard.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return stat.Mean(samples, nil)
}

// Derivative returns the first differences of samples (length n-1).
func Derivative(samples []float64) []float64 {
	if len(samples) < 2 {
		return nil
	}
	d := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d[i-1] = samples[i] - samples[i-1]
	}
	return d
}

// LocalMaxima returns the indices where the derivative turns from rising to
// falling, skipping any peak closer than minDistance samples to the previous
// one. A flat step counts as rising.
func LocalMaxima(samples []float64, minDistance int) []int {
	deriv := Derivative(samples)
	if len(deriv) == 0 {
		return nil
	}

	var maxima []int
	sinceLast := math.MaxInt
	prevRising := !math.Signbit(deriv[0])
	for i := 1; i < len(deriv); i++ {
		rising := !math.Signbit(deriv[i])
		if prevRising && !rising && sinceLast >= minDistance {
			maxima = append(maxima, i)
			sinceLast = 1
		} else if sinceLast < math.MaxInt {
			sinceLast++
		}
		prevRising = rising
	}
	return maxima
}

// ModelSample is the feature vector extracted from one snapshot.
type ModelSample struct {
	GSRMean          float64 `json:"gsrMean"`
	GSRLocals        float64 `json:"gsrLocals"`
	HRMean           float64 `json:"hrMean"`
	HRMeanDerivative float64 `json:"hrMeanDerivative"`
	TimestampBeg     float64 `json:"timestampBeg"`
	TimestampEnd     float64 `json:"timestampEnd"`
}

// FeatureNames lists the Values() columns in order.
var FeatureNames = []string{"gsr_mean", "gsr_locals", "hr_mean", "hr_mean_derivative"}

// FromSnapshot extracts the feature vector of snap.
func FromSnapshot(snap *acquisition.Snapshot) (ModelSample, error) {
	gsr := snap.Samples[sensor.GSR]
	hr := snap.Samples[sensor.HeartRate]
	if len(gsr) == 0 || len(hr) < 2 || snap.Length() <= 0 {
		return ModelSample{}, ErrNotEnoughSamples
	}

	minDistance := int(math.Ceil(minPeakSeparation * snap.Rate(sensor.GSR)))
	return ModelSample{
		GSRMean:          Mean(gsr),
		GSRLocals:        float64(len(LocalMaxima(gsr, minDistance))),
		HRMean:           Mean(hr),
		HRMeanDerivative: Mean(Derivative(hr)),
		TimestampBeg:     snap.TimestampBeg,
		TimestampEnd:     snap.TimestampEnd,
	}, nil
}

// Values returns the training columns.
func (m ModelSample) Values() []float64 {
	return []float64{m.GSRMean, m.GSRLocals, m.HRMean, m.HRMeanDerivative}
}

// Length is the window length in seconds.
func (m ModelSample) Length() float64 {
	return m.TimestampEnd - m.TimestampBeg
}
