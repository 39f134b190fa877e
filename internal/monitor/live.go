package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

var logf = monitoring.Component("monitor")

// DefaultLiveInterval is the push period of the live feed.
const DefaultLiveInterval = 250 * time.Millisecond

// LastSamplesFunc returns the most recent sample per channel, e.g.
// (*acquisition.Loop).LastSamples.
type LastSamplesFunc func(ctx context.Context) (map[sensor.Channel]sensor.Sample, error)

// LiveMessage is pushed to websocket clients.
type LiveMessage struct {
	Time    float64                          `json:"time"`
	Samples map[sensor.Channel]sensor.Sample `json:"samples"`
	Noise   bool                             `json:"noise"`
}

// LiveFeed streams the last sample of every channel to websocket clients.
type LiveFeed struct {
	Last     LastSamplesFunc
	Noise    func() bool
	Clock    timeutil.Clock
	Interval time.Duration

	upgrader websocket.Upgrader
}

func NewLiveFeed(last LastSamplesFunc, noise func() bool, clock timeutil.Clock) *LiveFeed {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LiveFeed{
		Last:     last,
		Noise:    noise,
		Clock:    clock,
		Interval: DefaultLiveInterval,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (f *LiveFeed) message(ctx context.Context) (LiveMessage, error) {
	last, err := f.Last(ctx)
	if err != nil {
		return LiveMessage{}, err
	}
	msg := LiveMessage{Time: timeutil.UnixSeconds(f.Clock.Now()), Samples: last}
	if f.Noise != nil {
		msg.Noise = f.Noise()
	}
	return msg, nil
}

func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client never sends anything meaningful; reading detects close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := f.Interval
	if interval <= 0 {
		interval = DefaultLiveInterval
	}
	ticker := f.Clock.NewTicker(interval)
	defer ticker.Stop()

	send := func() bool {
		msg, err := f.message(ctx)
		if err != nil {
			logf("live feed: %v", err)
			return false
		}
		return conn.WriteJSON(msg) == nil
	}
	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !send() {
				return
			}
		}
	}
}
