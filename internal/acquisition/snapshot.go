package acquisition

import (
	"github.com/banshee-data/stress.report/internal/sensor"
)

// Snapshot is the immutable result of one acquisition cycle.
type Snapshot struct {
	ID           string                       `json:"id"`
	TimestampBeg float64                      `json:"timestamp_beg"`
	TimestampEnd float64                      `json:"timestamp_end"`
	Samples      map[sensor.Channel][]float64 `json:"samples"`
	HasNoise     bool                         `json:"has_noise"`
}

// Length is the configured window length in seconds.
func (s *Snapshot) Length() float64 {
	return s.TimestampEnd - s.TimestampBeg
}

// Rate is the observed sampling rate of ch over the window, in Hz.
func (s *Snapshot) Rate(ch sensor.Channel) float64 {
	length := s.Length()
	if length <= 0 {
		return 0
	}
	return float64(len(s.Samples[ch])) / length
}
