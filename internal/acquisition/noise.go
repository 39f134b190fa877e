package acquisition

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

type noiseRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NoiseSample synthesizes a reading for ch: mean + amplitude × U(-1, 1).
func NoiseSample(ch sensor.Channel, at time.Time, rng *rand.Rand) sensor.Sample {
	info := ch.Info()
	noise := rng.Float64()*2 - 1
	return sensor.Sample{
		Value:     info.Mean + info.Amplitude*noise,
		Timestamp: timeutil.UnixSeconds(at),
		Channel:   ch,
		IsNoise:   true,
	}
}

// StartNoise starts one generator per catalog channel, each ticking at the
// channel's average rate. Calling it while noise is running is a no-op.
func (l *Loop) StartNoise(ctx context.Context) {
	l.noiseMu.Lock()
	defer l.noiseMu.Unlock()
	if l.noise != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	run := &noiseRun{cancel: cancel}
	for _, ch := range sensor.All() {
		period := time.Duration(float64(time.Second) / ch.Info().Frequency.Avg)
		ticker := l.clock.NewTicker(period)
		rng := rand.New(rand.NewPCG(uint64(l.clock.Now().UnixNano()), uint64(ch)))

		run.wg.Add(1)
		go func() {
			defer run.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C():
					if err := l.Submit(ctx, NoiseSample(ch, l.clock.Now(), rng)); err != nil {
						return
					}
				}
			}
		}()
	}
	l.noise = run
	logf("debug noise started")
}

// StopNoise stops the generators and waits for them to exit.
func (l *Loop) StopNoise() {
	l.noiseMu.Lock()
	run := l.noise
	l.noise = nil
	l.noiseMu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	run.wg.Wait()
	logf("debug noise stopped")
}

// NoiseActive reports whether the generators are running.
func (l *Loop) NoiseActive() bool {
	l.noiseMu.Lock()
	defer l.noiseMu.Unlock()
	return l.noise != nil
}
