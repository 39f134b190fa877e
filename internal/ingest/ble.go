package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// Heart Rate Measurement (0x2A37) flag bits.
const (
	hrFlagUint16        = 1 << 0
	hrFlagEnergy        = 1 << 3
	hrFlagRRIntervals   = 1 << 4
	rrIntervalPerSecond = 1024.0
)

var errShortMeasurement = errors.New("ble: truncated heart rate measurement")

// ParseHeartRateMeasurement decodes a Heart Rate Measurement notification
// received at at. It yields one HR sample plus one IBI sample per RR
// interval; RR timestamps are spaced backwards from at by their own lengths.
func ParseHeartRateMeasurement(buf []byte, at time.Time) ([]sensor.Sample, error) {
	if len(buf) < 2 {
		return nil, errShortMeasurement
	}
	flags := buf[0]
	ts := timeutil.UnixSeconds(at)
	pos := 1

	var hr float64
	if flags&hrFlagUint16 != 0 {
		if len(buf) < pos+2 {
			return nil, errShortMeasurement
		}
		hr = float64(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
	} else {
		hr = float64(buf[pos])
		pos++
	}
	out := []sensor.Sample{{Channel: sensor.HeartRate, Value: hr, Timestamp: ts}}

	if flags&hrFlagEnergy != 0 {
		pos += 2
	}
	if flags&hrFlagRRIntervals == 0 {
		return out, nil
	}
	if pos > len(buf) {
		return nil, errShortMeasurement
	}
	var rr []float64
	for ; pos+1 < len(buf); pos += 2 {
		rr = append(rr, float64(binary.LittleEndian.Uint16(buf[pos:]))/rrIntervalPerSecond)
	}
	// the last interval ends at the notification time
	end := ts
	ibi := make([]sensor.Sample, len(rr))
	for i := len(rr) - 1; i >= 0; i-- {
		ibi[i] = sensor.Sample{Channel: sensor.IBI, Value: rr[i], Timestamp: end}
		end -= rr[i]
	}
	return append(out, ibi...), nil
}

// BLEHeartRate connects to the first advertising heart-rate strap (or the
// one named Name) and streams its measurements.
type BLEHeartRate struct {
	Adapter     *bluetooth.Adapter
	Name        string
	ScanTimeout time.Duration
	Clock       timeutil.Clock
}

func (b BLEHeartRate) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	timeout := b.ScanTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	found := make(chan bluetooth.ScanResult, 1)
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-scanCtx.Done()
		b.Adapter.StopScan()
	}()

	err := b.Adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
		if !res.HasServiceUUID(bluetooth.ServiceUUIDHeartRate) {
			return
		}
		if b.Name != "" && res.LocalName() != b.Name {
			return
		}
		select {
		case found <- res:
			a.StopScan()
		default:
		}
	})
	select {
	case res := <-found:
		return res, nil
	default:
	}
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("ble scan: %w", err)
	}
	return bluetooth.ScanResult{}, fmt.Errorf("ble scan: no heart rate sensor found in %s", timeout)
}

// Run scans, connects, enables notifications and forwards samples until ctx
// is cancelled.
func (b BLEHeartRate) Run(ctx context.Context, sink Sink) error {
	if b.Adapter == nil {
		b.Adapter = bluetooth.DefaultAdapter
	}
	if b.Clock == nil {
		b.Clock = timeutil.RealClock{}
	}
	if err := b.Adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable: %w", err)
	}

	res, err := b.scan(ctx)
	if err != nil {
		return err
	}
	logf("ble connecting to %s (%s)", res.LocalName(), res.Address.String())
	device, err := b.Adapter.Connect(res.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("ble connect: %w", err)
	}
	defer device.Disconnect()

	srvs, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDHeartRate})
	if err != nil || len(srvs) == 0 {
		return fmt.Errorf("ble discover heart rate service: %v", err)
	}
	chars, err := srvs[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.CharacteristicUUIDHeartRateMeasurement})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("ble discover heart rate measurement: %v", err)
	}

	err = chars[0].EnableNotifications(func(buf []byte) {
		samples, err := ParseHeartRateMeasurement(buf, b.Clock.Now())
		if err != nil {
			logf("%v", err)
			return
		}
		for _, s := range samples {
			if err := sink.Submit(ctx, s); err != nil {
				return
			}
		}
	})
	if err != nil {
		return fmt.Errorf("ble enable notifications: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}
