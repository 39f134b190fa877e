package serialmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/stress.report/internal/sensor"
)

// ErrSkipLine marks blank and comment lines.
var ErrSkipLine = errors.New("serialmux: skip line")

// ParseSampleLine parses "<channel>,<unix-seconds>,<value>", for example
// "gsr,1700000000.25,2.1". Blank lines and lines starting with '#' return
// ErrSkipLine.
func ParseSampleLine(line string) (sensor.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return sensor.Sample{}, ErrSkipLine
	}
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return sensor.Sample{}, fmt.Errorf("malformed sample line %q: want 3 fields, got %d", line, len(fields))
	}
	ch, err := sensor.ParseChannel(strings.TrimSpace(fields[0]))
	if err != nil {
		return sensor.Sample{}, err
	}
	ts, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return sensor.Sample{}, fmt.Errorf("bad timestamp in %q: %w", line, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return sensor.Sample{}, fmt.Errorf("bad value in %q: %w", line, err)
	}
	s := sensor.Sample{Value: v, Timestamp: ts, Channel: ch}
	if err := s.Validate(); err != nil {
		return sensor.Sample{}, err
	}
	return s, nil
}
