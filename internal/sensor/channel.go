// Package sensor describes the physiological signal channels produced by the
// wristband and the samples they carry.
package sensor

import (
	"fmt"
	"strings"
)

// Channel identifies one signal stream.
type Channel int

const (
	GSR Channel = iota + 1
	BVP
	Temperature
	AccelerationX
	AccelerationY
	AccelerationZ
	IBI
	HeartRate
	BatteryLevel
)

// Frequency is the plausible sampling-rate envelope of a channel, in Hz.
type Frequency struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// Info is the static description of a channel.
type Info struct {
	ShortName string    `json:"short_name"`
	Frequency Frequency `json:"frequency"`
	// Mean and Amplitude shape the synthetic debug noise only.
	Mean      float64 `json:"mean"`
	Amplitude float64 `json:"amplitude"`
}

var catalog = map[Channel]Info{
	GSR:           {ShortName: "gsr", Frequency: Frequency{3.8, 4, 4.2}, Mean: 2, Amplitude: 1},
	BVP:           {ShortName: "bvp", Frequency: Frequency{60, 64, 68}, Mean: 0, Amplitude: 150},
	Temperature:   {ShortName: "temp", Frequency: Frequency{3.8, 4, 4.2}, Mean: 28, Amplitude: 2},
	AccelerationX: {ShortName: "accx", Frequency: Frequency{30, 32, 34}, Mean: 0, Amplitude: 1},
	AccelerationY: {ShortName: "accy", Frequency: Frequency{30, 32, 34}, Mean: 0, Amplitude: 1},
	AccelerationZ: {ShortName: "accz", Frequency: Frequency{30, 32, 34}, Mean: 0, Amplitude: 1},
	IBI:           {ShortName: "ibi", Frequency: Frequency{0.5, 1, 2}, Mean: 1.2, Amplitude: 0.2},
	HeartRate:     {ShortName: "hr", Frequency: Frequency{0.9, 1, 1.1}, Mean: 70, Amplitude: 20},
	BatteryLevel:  {ShortName: "battery", Frequency: Frequency{0.01, 0.1, 1}, Mean: 0.5, Amplitude: 0.2},
}

// All lists every known channel in catalog order.
func All() []Channel {
	return []Channel{GSR, BVP, Temperature, AccelerationX, AccelerationY, AccelerationZ, IBI, HeartRate, BatteryLevel}
}

// Tracked lists the channels buffered for snapshots by default.
func Tracked() []Channel {
	return []Channel{BVP, GSR, HeartRate}
}

// Info returns the catalog entry for c. Unknown channels yield the zero Info.
func (c Channel) Info() Info {
	return catalog[c]
}

// Valid reports whether c is a catalog channel.
func (c Channel) Valid() bool {
	_, ok := catalog[c]
	return ok
}

func (c Channel) String() string {
	if info, ok := catalog[c]; ok {
		return info.ShortName
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// ParseChannel resolves a short name such as "gsr" or "hr".
func ParseChannel(name string) (Channel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range All() {
		if catalog[c].ShortName == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// MarshalText encodes the channel as its short name.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a short name.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
