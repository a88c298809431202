package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
provider:
  id: openai
  model: gpt-4o-mini
stt:
  url: wss://stt.example.com/v1/stream
tts:
  url: wss://tts.example.com/v1/synthesize
  voice: en-US-standard
redis:
  addr: localhost:6379
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Session.TurnTimeout != 3*time.Second {
		t.Errorf("TurnTimeout = %v, want 3s default", cfg.Session.TurnTimeout)
	}
	if cfg.Session.LatencyThreshold != 1500*time.Millisecond {
		t.Errorf("LatencyThreshold = %v, want 1.5s default", cfg.Session.LatencyThreshold)
	}
	if cfg.STT.SilenceTimeout != 700*time.Millisecond {
		t.Errorf("SilenceTimeout = %v, want 700ms default", cfg.STT.SilenceTimeout)
	}
	if cfg.STT.SampleRate != 16000 {
		t.Errorf("STT SampleRate = %d, want 16000 default", cfg.STT.SampleRate)
	}
	if cfg.Redis.KeyPrefix != "callcore" {
		t.Errorf("KeyPrefix = %q", cfg.Redis.KeyPrefix)
	}
}

func TestParse_ExplicitValuesWin(t *testing.T) {
	cfg, err := Parse([]byte(validYAML + `
session:
  turn_timeout: 5s
  latency_threshold: 2s
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Session.TurnTimeout != 5*time.Second {
		t.Errorf("TurnTimeout = %v, want 5s", cfg.Session.TurnTimeout)
	}
	if cfg.Session.LatencyThreshold != 2*time.Second {
		t.Errorf("LatencyThreshold = %v, want 2s", cfg.Session.LatencyThreshold)
	}
}

func TestParse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing model", `
stt: {url: wss://stt}
tts: {url: wss://tts}
`},
		{"missing stt url", `
provider: {model: gpt-4o-mini}
tts: {url: wss://tts}
`},
		{"telemetry without endpoint", validYAML + `
telemetry:
  enabled: true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("provider: [")); err == nil {
		t.Error("expected parse error")
	}
}
