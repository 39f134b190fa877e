package sensor

import (
	"fmt"
	"math"
)

// Sample is one timestamped reading. Timestamp is unix seconds.
type Sample struct {
	Value     float64 `json:"value"`
	Timestamp float64 `json:"timestamp"`
	Channel   Channel `json:"channel"`
	IsNoise   bool    `json:"is_noise,omitempty"`
}

// Validate rejects samples that cannot be placed in a time window.
func (s Sample) Validate() error {
	if !s.Channel.Valid() {
		return fmt.Errorf("invalid channel %d", int(s.Channel))
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%s: non-finite value", s.Channel)
	}
	if math.IsNaN(s.Timestamp) || math.IsInf(s.Timestamp, 0) || s.Timestamp <= 0 {
		return fmt.Errorf("%s: invalid timestamp %v", s.Channel, s.Timestamp)
	}
	return nil
}
