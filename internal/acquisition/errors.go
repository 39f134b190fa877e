package acquisition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/stress.report/internal/sensor"
)

var (
	// ErrInsufficientSamples matches any *InsufficientSamplesError.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrLoopStopped is returned by Loop methods once Run has exited.
	ErrLoopStopped = errors.New("acquisition loop stopped")
)

// Shortfall describes one channel that did not collect enough samples.
type Shortfall struct {
	Channel sensor.Channel `json:"channel"`
	Got     int            `json:"got"`
	Needed  int            `json:"needed"`
	Rate    float64        `json:"rate"` // observed Hz over the window
}

func (s Shortfall) String() string {
	return fmt.Sprintf("valid %s samples: %d/%d (%.0f Hz)", s.Channel, s.Got, s.Needed, s.Rate)
}

// InsufficientSamplesError reports every channel that fell short during one
// snapshot attempt.
type InsufficientSamplesError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientSamplesError) Error() string {
	lines := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}

func (e *InsufficientSamplesError) Is(target error) bool {
	return target == ErrInsufficientSamples
}
