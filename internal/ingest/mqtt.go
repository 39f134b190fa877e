package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/stress.report/internal/sensor"
	"github.com/banshee-data/stress.report/internal/serialmux"
)

// DefaultMQTTTopic is subscribed when none is configured.
const DefaultMQTTTopic = "stress/sensors/#"

// MQTTSource subscribes to a broker topic. Each message carries one sample,
// either as a "<channel>,<unix-seconds>,<value>" line or as JSON
// {"channel","timestamp","value"}.
type MQTTSource struct {
	Broker   string
	Topic    string
	ClientID string
}

type jsonSample struct {
	Channel   sensor.Channel `json:"channel"`
	Timestamp float64        `json:"timestamp"`
	Value     float64        `json:"value"`
}

// ParseMessage decodes an MQTT payload into a sample.
func ParseMessage(payload []byte) (sensor.Sample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var js jsonSample
		if err := json.Unmarshal(payload, &js); err != nil {
			return sensor.Sample{}, fmt.Errorf("decode sample message: %w", err)
		}
		s := sensor.Sample{Channel: js.Channel, Timestamp: js.Timestamp, Value: js.Value}
		return s, s.Validate()
	}
	return serialmux.ParseSampleLine(string(payload))
}

func (m MQTTSource) topic() string {
	if m.Topic == "" {
		return DefaultMQTTTopic
	}
	return m.Topic
}

// handler builds the message callback that forwards parsed samples to sink.
func (m MQTTSource) handler(ctx context.Context, sink Sink) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		s, err := ParseMessage(msg.Payload())
		if errors.Is(err, serialmux.ErrSkipLine) {
			return
		}
		if err != nil {
			logf("mqtt %s: %v", msg.Topic(), err)
			return
		}
		if err := sink.Submit(ctx, s); err != nil && ctx.Err() == nil {
			logf("mqtt submit: %v", err)
		}
	}
}

// Run connects, subscribes on every (re)connect, and blocks until ctx is
// cancelled.
func (m MQTTSource) Run(ctx context.Context, sink Sink) error {
	if m.Broker == "" {
		return errors.New("mqtt: no broker configured")
	}
	clientID := m.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("stress-report-%d", time.Now().Unix())
	}
	onMessage := m.handler(ctx, sink)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(m.topic(), 1, onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			logf("mqtt subscribe %s: %v", m.topic(), err)
			return
		}
		logf("mqtt subscribed to %s on %s", m.topic(), m.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logf("mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.Broker, token.Error())
	}
	<-ctx.Done()
	client.Disconnect(250)
	return ctx.Err()
}
