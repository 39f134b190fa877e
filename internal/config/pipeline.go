package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/stress.report/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults applied by the Get* accessors.
const (
	DefaultWindowLength         = 2 * time.Minute
	DefaultCooldownLength       = 2 * time.Minute
	DefaultMinSamplesPerClass   = 5
	DefaultMinRegressionSamples = 5
	DefaultDataDir              = "data"
	DefaultRidgeLambda          = 1.0
	DefaultMirrorQueueSize      = 256
	DefaultAutologMinInterval   = 4 * time.Minute
	DefaultAutologMaxInterval   = 16 * time.Minute
	DefaultMQTTTopic            = "stress/sensors/#"
)

// PipelineConfig is the root configuration of the acquisition and model
// pipeline. Every field is optional; omitted fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type PipelineConfig struct {
	// Acquisition
	WindowLength *string `json:"window_length,omitempty"` // duration string like "2m"
	DebugNoise   *bool   `json:"debug_noise,omitempty"`

	// Model controller
	CooldownLength       *string  `json:"cooldown_length,omitempty"`
	DisableCooldown      *bool    `json:"disable_cooldown,omitempty"`
	MinSamplesPerClass   *int     `json:"min_samples_per_class,omitempty"`
	MinRegressionSamples *int     `json:"min_regression_samples,omitempty"`
	DataDir              *string  `json:"data_dir,omitempty"`
	RidgeLambda          *float64 `json:"ridge_lambda,omitempty"`

	// Sensor sources
	SerialPort   *string                `json:"serial_port,omitempty"`
	Serial       *serialmux.PortOptions `json:"serial,omitempty"`
	MQTTBroker   *string                `json:"mqtt_broker,omitempty"`
	MQTTTopic    *string                `json:"mqtt_topic,omitempty"`
	BLEHeartRate *bool                  `json:"ble_heart_rate,omitempty"`

	// Remote mirroring
	RemoteDSN          *string `json:"remote_dsn,omitempty"`
	UserID             *string `json:"user_id,omitempty"`
	MirrorQueueSize    *int    `json:"mirror_queue_size,omitempty"`
	AutologMinInterval *string `json:"autolog_min_interval,omitempty"`
	AutologMaxInterval *string `json:"autolog_max_interval,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every tunable field set to
// its default.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		WindowLength:         ptrString(DefaultWindowLength.String()),
		DebugNoise:           ptrBool(false),
		CooldownLength:       ptrString(DefaultCooldownLength.String()),
		DisableCooldown:      ptrBool(false),
		MinSamplesPerClass:   ptrInt(DefaultMinSamplesPerClass),
		MinRegressionSamples: ptrInt(DefaultMinRegressionSamples),
		DataDir:              ptrString(DefaultDataDir),
		RidgeLambda:          ptrFloat64(DefaultRidgeLambda),
		MQTTTopic:            ptrString(DefaultMQTTTopic),
		BLEHeartRate:         ptrBool(false),
		MirrorQueueSize:      ptrInt(DefaultMirrorQueueSize),
		AutologMinInterval:   ptrString(DefaultAutologMinInterval.String()),
		AutologMaxInterval:   ptrString(DefaultAutologMaxInterval.String()),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func validateDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	for name, v := range map[string]*string{
		"window_length":        c.WindowLength,
		"cooldown_length":      c.CooldownLength,
		"autolog_min_interval": c.AutologMinInterval,
		"autolog_max_interval": c.AutologMaxInterval,
	} {
		if err := validateDuration(name, v); err != nil {
			return err
		}
	}
	if c.GetAutologMinInterval() > c.GetAutologMaxInterval() {
		return fmt.Errorf("autolog_min_interval %s exceeds autolog_max_interval %s",
			c.GetAutologMinInterval(), c.GetAutologMaxInterval())
	}

	if c.MinSamplesPerClass != nil && *c.MinSamplesPerClass < 1 {
		return fmt.Errorf("min_samples_per_class must be at least 1, got %d", *c.MinSamplesPerClass)
	}
	if c.MinRegressionSamples != nil && *c.MinRegressionSamples < 1 {
		return fmt.Errorf("min_regression_samples must be at least 1, got %d", *c.MinRegressionSamples)
	}
	if c.RidgeLambda != nil && *c.RidgeLambda < 0 {
		return fmt.Errorf("ridge_lambda must be non-negative, got %f", *c.RidgeLambda)
	}
	if c.MirrorQueueSize != nil && *c.MirrorQueueSize < 1 {
		return fmt.Errorf("mirror_queue_size must be at least 1, got %d", *c.MirrorQueueSize)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetWindowLength returns the acquisition window length.
func (c *PipelineConfig) GetWindowLength() time.Duration {
	return durationOr(c.WindowLength, DefaultWindowLength)
}

func (c *PipelineConfig) GetDebugNoise() bool {
	return c.DebugNoise != nil && *c.DebugNoise
}

// GetCooldownLength returns the minimum time between training runs.
func (c *PipelineConfig) GetCooldownLength() time.Duration {
	return durationOr(c.CooldownLength, DefaultCooldownLength)
}

func (c *PipelineConfig) GetDisableCooldown() bool {
	return c.DisableCooldown != nil && *c.DisableCooldown
}

// GetMinSamplesPerClass returns the per-class threshold for classification.
func (c *PipelineConfig) GetMinSamplesPerClass() int {
	if c.MinSamplesPerClass == nil {
		return DefaultMinSamplesPerClass
	}
	return *c.MinSamplesPerClass
}

// GetMinRegressionSamples returns the count a regression dataset must exceed.
func (c *PipelineConfig) GetMinRegressionSamples() int {
	if c.MinRegressionSamples == nil {
		return DefaultMinRegressionSamples
	}
	return *c.MinRegressionSamples
}

func (c *PipelineConfig) GetDataDir() string {
	return stringOr(c.DataDir, DefaultDataDir)
}

func (c *PipelineConfig) GetRidgeLambda() float64 {
	if c.RidgeLambda == nil {
		return DefaultRidgeLambda
	}
	return *c.RidgeLambda
}

func (c *PipelineConfig) GetSerialPort() string {
	return stringOr(c.SerialPort, "")
}

// GetSerial returns the serial options with defaults applied.
func (c *PipelineConfig) GetSerial() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalize(); err == nil {
		return n
	}
	return opts
}

func (c *PipelineConfig) GetMQTTBroker() string {
	return stringOr(c.MQTTBroker, "")
}

func (c *PipelineConfig) GetMQTTTopic() string {
	return stringOr(c.MQTTTopic, DefaultMQTTTopic)
}

func (c *PipelineConfig) GetBLEHeartRate() bool {
	return c.BLEHeartRate != nil && *c.BLEHeartRate
}

func (c *PipelineConfig) GetRemoteDSN() string {
	return stringOr(c.RemoteDSN, "")
}

func (c *PipelineConfig) GetUserID() string {
	return stringOr(c.UserID, "")
}

func (c *PipelineConfig) GetMirrorQueueSize() int {
	if c.MirrorQueueSize == nil {
		return DefaultMirrorQueueSize
	}
	return *c.MirrorQueueSize
}

func (c *PipelineConfig) GetAutologMinInterval() time.Duration {
	return durationOr(c.AutologMinInterval, DefaultAutologMinInterval)
}

func (c *PipelineConfig) GetAutologMaxInterval() time.Duration {
	return durationOr(c.AutologMaxInterval, DefaultAutologMaxInterval)
}
