// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"phobos.org.uk/sajtmaskin/internal/logging"
)

// Environment overrides.
const (
	EnvLogLevel    = "SAJTMASKIN_LOG_LEVEL"
	EnvUpstreamURL = "SAJTMASKIN_UPSTREAM_URL"
)

// Config represents the service configuration
type Config struct {
	Port     int            `yaml:"port"`
	Bind     string         `yaml:"bind"`
	LogLevel string         `yaml:"log_level"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Streams  StreamsConfig  `yaml:"streams"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// UpstreamConfig holds generation API settings
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"` // Name of the env var holding the API key
	Timeout   time.Duration `yaml:"timeout"`
	Rate      float64       `yaml:"rate"` // Requests per second
	Burst     int           `yaml:"burst"`
}

// StreamsConfig bounds stream tracking.
type StreamsConfig struct {
	MaxRetained      int `yaml:"max_retained"`
	MaxFrameBytes    int `yaml:"max_frame_bytes"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// IngestConfig limits stream submissions per client IP.
type IngestConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

// Defaults
const (
	DefaultPort             = 9100
	DefaultBind             = "127.0.0.1"
	DefaultLogLevel         = "info"
	DefaultBaseURL          = "https://api.v0.dev/v1"
	DefaultAPIKeyEnv        = "V0_API_KEY"
	DefaultTimeout          = 10 * time.Minute
	DefaultUpstreamRate     = 1.0
	DefaultUpstreamBurst    = 3
	DefaultMaxRetained      = 256
	DefaultMaxFrameBytes    = 1 << 20
	DefaultSubscriberBuffer = 64
	DefaultIngestRate       = 20.0
	DefaultIngestBurst      = 40
)

// Parse parses YAML config data and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	return parse(data, os.LookupEnv)
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads config from a file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return Parse(nil)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvUpstreamURL); ok && v != "" {
		c.Upstream.BaseURL = v
	}
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.APIKeyEnv == "" {
		return fmt.Errorf("upstream.api_key_env must be set")
	}
	if c.Upstream.Timeout < time.Second {
		return fmt.Errorf("upstream.timeout must be at least 1 second, got %v", c.Upstream.Timeout)
	}
	if c.Upstream.Rate <= 0 || c.Upstream.Burst < 1 {
		return fmt.Errorf("upstream.rate and upstream.burst must be positive")
	}

	if c.Streams.MaxRetained < 1 {
		return fmt.Errorf("streams.max_retained must be at least 1, got %d", c.Streams.MaxRetained)
	}
	if c.Streams.MaxFrameBytes < 1024 {
		return fmt.Errorf("streams.max_frame_bytes must be at least 1024, got %d", c.Streams.MaxFrameBytes)
	}
	if c.Streams.SubscriberBuffer < 1 {
		return fmt.Errorf("streams.subscriber_buffer must be at least 1, got %d", c.Streams.SubscriberBuffer)
	}

	if c.Ingest.Rate <= 0 || c.Ingest.Burst < 1 {
		return fmt.Errorf("ingest.rate and ingest.burst must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// APIKey returns the upstream API key from the configured env var.
func (c *Config) APIKey() string {
	return os.Getenv(c.Upstream.APIKeyEnv)
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		Bind:     DefaultBind,
		LogLevel: DefaultLogLevel,
		Upstream: UpstreamConfig{
			BaseURL:   DefaultBaseURL,
			APIKeyEnv: DefaultAPIKeyEnv,
			Timeout:   DefaultTimeout,
			Rate:      DefaultUpstreamRate,
			Burst:     DefaultUpstreamBurst,
		},
		Streams: StreamsConfig{
			MaxRetained:      DefaultMaxRetained,
			MaxFrameBytes:    DefaultMaxFrameBytes,
			SubscriberBuffer: DefaultSubscriberBuffer,
		},
		Ingest: IngestConfig{
			Rate:  DefaultIngestRate,
			Burst: DefaultIngestBurst,
		},
	}
}
