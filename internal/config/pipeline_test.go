package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/stress.report/internal/serialmux"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.GetWindowLength() != 2*time.Minute {
		t.Errorf("GetWindowLength() = %v, want 2m", cfg.GetWindowLength())
	}
	if cfg.GetCooldownLength() != 2*time.Minute {
		t.Errorf("GetCooldownLength() = %v, want 2m", cfg.GetCooldownLength())
	}
	if cfg.GetMinSamplesPerClass() != 5 || cfg.GetMinRegressionSamples() != 5 {
		t.Errorf("thresholds = %d/%d, want 5/5", cfg.GetMinSamplesPerClass(), cfg.GetMinRegressionSamples())
	}
	if cfg.GetAutologMinInterval() != 4*time.Minute || cfg.GetAutologMaxInterval() != 16*time.Minute {
		t.Errorf("autolog = %v..%v", cfg.GetAutologMinInterval(), cfg.GetAutologMaxInterval())
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyPipelineConfig()
	if cfg.GetWindowLength() != DefaultWindowLength {
		t.Errorf("GetWindowLength() = %v", cfg.GetWindowLength())
	}
	if cfg.GetDataDir() != DefaultDataDir {
		t.Errorf("GetDataDir() = %q", cfg.GetDataDir())
	}
	if cfg.GetRidgeLambda() != DefaultRidgeLambda {
		t.Errorf("GetRidgeLambda() = %v", cfg.GetRidgeLambda())
	}
	if cfg.GetDebugNoise() || cfg.GetDisableCooldown() || cfg.GetBLEHeartRate() {
		t.Error("boolean defaults should be false")
	}
	if cfg.GetSerial().BaudRate != serialmux.DefaultBaudRate {
		t.Errorf("GetSerial().BaudRate = %d", cfg.GetSerial().BaudRate)
	}
	if cfg.GetMirrorQueueSize() != DefaultMirrorQueueSize {
		t.Errorf("GetMirrorQueueSize() = %d", cfg.GetMirrorQueueSize())
	}
	if cfg.GetMQTTTopic() != DefaultMQTTTopic || cfg.GetMQTTBroker() != "" {
		t.Errorf("mqtt = %q %q", cfg.GetMQTTBroker(), cfg.GetMQTTTopic())
	}
	if cfg.GetUserID() != "" || cfg.GetRemoteDSN() != "" || cfg.GetSerialPort() != "" {
		t.Error("connection strings should default to empty")
	}
}

func TestLoadPipelineConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	data := `{
  "window_length": "90s",
  "disable_cooldown": true,
  "min_regression_samples": 10,
  "user_id": "participant-3",
  "serial": {"baud_rate": 9600, "parity": "even"}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadPipelineConfig(path)
	if err != nil {
		t.Fatalf("LoadPipelineConfig: %v", err)
	}
	if cfg.GetWindowLength() != 90*time.Second {
		t.Errorf("GetWindowLength() = %v", cfg.GetWindowLength())
	}
	if !cfg.GetDisableCooldown() {
		t.Error("disable_cooldown not applied")
	}
	if cfg.GetMinRegressionSamples() != 10 {
		t.Errorf("GetMinRegressionSamples() = %d", cfg.GetMinRegressionSamples())
	}
	if cfg.GetUserID() != "participant-3" {
		t.Errorf("GetUserID() = %q", cfg.GetUserID())
	}
	if s := cfg.GetSerial(); s.BaudRate != 9600 || s.Parity != "E" {
		t.Errorf("GetSerial() = %+v", s)
	}
	// untouched fields keep defaults
	if cfg.GetCooldownLength() != DefaultCooldownLength {
		t.Errorf("GetCooldownLength() = %v", cfg.GetCooldownLength())
	}
}

func TestLoadPipelineConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"extension", write("pipeline.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(dir, "absent.json"), "stat"},
		{"syntax", write("bad.json", "{"), "parse"},
		{"duration", write("dur.json", `{"window_length":"soon"}`), "window_length"},
		{"negative duration", write("neg.json", `{"cooldown_length":"-1m"}`), "cooldown_length"},
		{"threshold", write("thr.json", `{"min_samples_per_class":0}`), "min_samples_per_class"},
		{"lambda", write("lambda.json", `{"ridge_lambda":-1}`), "ridge_lambda"},
		{"autolog order", write("auto.json", `{"autolog_min_interval":"20m"}`), "exceeds"},
		{"serial", write("serial.json", `{"serial":{"parity":"M"}}`), "serial"},
		{"queue", write("queue.json", `{"mirror_queue_size":0}`), "mirror_queue_size"},
		{"too large", write("large.json", `{"user_id":"`+strings.Repeat("x", maxFileSize)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPipelineConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetWindowLength() != DefaultWindowLength {
		t.Errorf("defaults file window_length = %v", cfg.GetWindowLength())
	}
	if cfg.GetSerial().BaudRate != 115200 {
		t.Errorf("defaults file baud = %d", cfg.GetSerial().BaudRate)
	}
}
