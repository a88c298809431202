// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig configures the turn-generating model backend.
type ProviderConfig struct {
	ID      string  `yaml:"id"`
	Model   string  `yaml:"model"`
	BaseURL string  `yaml:"base_url"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// STTConfig configures the transcription provider connection.
type STTConfig struct {
	URL            string        `yaml:"url"`
	SampleRate     int           `yaml:"sample_rate"`
	Language       string        `yaml:"language"`
	Model          string        `yaml:"model"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

// TTSConfig configures the synthesis provider connection.
type TTSConfig struct {
	URL        string  `yaml:"url"`
	Voice      string  `yaml:"voice"`
	Format     string  `yaml:"format"`
	SampleRate int     `yaml:"sample_rate"`
	Speed      float64 `yaml:"speed"`
}

// SessionConfig bounds turn processing and concurrency.
type SessionConfig struct {
	// TurnTimeout bounds one model call.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// LatencyThreshold is the end-to-end turn budget for reporting.
	LatencyThreshold time.Duration `yaml:"latency_threshold"`
	// MaxConcurrentTurns bounds in-flight model calls across sessions.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`
}

// RedisConfig configures call record persistence. An empty Addr
// selects the in-memory store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	RecordTTL time.Duration `yaml:"record_ttl"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// defaults fills unset fields with production defaults.
func (c *Config) defaults() {
	if c.Provider.RPS <= 0 {
		c.Provider.RPS = 10
	}
	if c.Provider.Burst <= 0 {
		c.Provider.Burst = 5
	}
	if c.STT.SampleRate == 0 {
		c.STT.SampleRate = 16000
	}
	if c.STT.Language == "" {
		c.STT.Language = "en-US"
	}
	if c.STT.SilenceTimeout == 0 {
		c.STT.SilenceTimeout = 700 * time.Millisecond
	}
	if c.TTS.Format == "" {
		c.TTS.Format = "pcm"
	}
	if c.TTS.SampleRate == 0 {
		c.TTS.SampleRate = 16000
	}
	if c.TTS.Speed == 0 {
		c.TTS.Speed = 1.0
	}
	if c.Session.TurnTimeout == 0 {
		c.Session.TurnTimeout = 3 * time.Second
	}
	if c.Session.LatencyThreshold == 0 {
		c.Session.LatencyThreshold = 1500 * time.Millisecond
	}
	if c.Session.MaxConcurrentTurns == 0 {
		c.Session.MaxConcurrentTurns = 32
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "callcore"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "callcore"
	}
}

// Validate checks for configuration that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.STT.URL == "" {
		return fmt.Errorf("stt.url is required")
	}
	if c.TTS.URL == "" {
		return fmt.Errorf("tts.url is required")
	}
	if c.Session.TurnTimeout < 0 {
		return fmt.Errorf("session.turn_timeout must not be negative")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
