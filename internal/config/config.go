// Package config loads tramboard configuration from defaults, an optional
// YAML file and TRAMBOARD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "TRAMBOARD_CONFIG"

var (
	// ErrInvalidConfig is returned when the merged configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidEnv is returned when an environment override cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)

// BackendConfig describes the departures backend.
type BackendConfig struct {
	Host             string `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port             int    `yaml:"port" validate:"gt=0,lte=65535"`
	TLS              bool   `yaml:"tls"`
	TimeoutMS        int    `yaml:"timeoutMS" validate:"gt=0"`
	WindowMinutes    int    `yaml:"windowMinutes" validate:"gt=0,lte=1440"`
	MaxResponseBytes int64  `yaml:"maxResponseBytes" validate:"gte=0"`
}

// Timeout returns the fetch timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// TrustConfig selects how the backend certificate is checked.
type TrustConfig struct {
	Mode        string `yaml:"mode" validate:"oneof=accept-all pinned system custom-ca"`
	Fingerprint string `yaml:"fingerprint" validate:"required_if=Mode pinned"`
	CAFile      string `yaml:"caFile" validate:"required_if=Mode custom-ca"`
}

// PollConfig controls the tick loop and the departure store.
type PollConfig struct {
	IntervalMS     uint32 `yaml:"intervalMS" validate:"gt=0"`
	TickMS         int    `yaml:"tickMS" validate:"gt=0"`
	Capacity       int    `yaml:"capacity" validate:"gt=0,lte=64"`
	DocumentBudget int    `yaml:"documentBudget" validate:"gte=0"`
	OfflinePolicy  string `yaml:"offlinePolicy" validate:"oneof=retain clear"`
}

// TickPeriod returns how often the tracker ticks.
func (p PollConfig) TickPeriod() time.Duration {
	return time.Duration(p.TickMS) * time.Millisecond
}

// LocationConfig selects the position source.
type LocationConfig struct {
	Source    string  `yaml:"source" validate:"oneof=static serial tcp"`
	Latitude  float64 `yaml:"latitude" validate:"latitude"`
	Longitude float64 `yaml:"longitude" validate:"longitude"`
	Device    string  `yaml:"device" validate:"required_if=Source serial"`
	Baud      int     `yaml:"baud" validate:"gte=0"`
	Address   string  `yaml:"address" validate:"required_if=Source tcp"`
	MaxAgeMS  int     `yaml:"maxAgeMS" validate:"gte=0"`
}

// MaxAge returns how long a fix stays valid, 0 for forever.
func (l LocationConfig) MaxAge() time.Duration {
	return time.Duration(l.MaxAgeMS) * time.Millisecond
}

// LinkConfig names the network interface whose state is the connectivity signal.
// An empty interface means always online.
type LinkConfig struct {
	Interface string `yaml:"interface"`
}

// BreakerConfig controls the circuit breaker around the backend.
type BreakerConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ConsecutiveFailures uint32 `yaml:"consecutiveFailures" validate:"gt=0"`
	OpenTimeoutMS       int    `yaml:"openTimeoutMS" validate:"gt=0"`
}

// OpenTimeout returns how long the breaker stays open.
func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenTimeoutMS) * time.Millisecond
}

// DisplayConfig controls the character board on stdout.
type DisplayConfig struct {
	Console bool `yaml:"console"`
}

// APIConfig controls the read-only HTTP API.
type APIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr" validate:"required_if=Enabled true"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" validate:"gte=0"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Endpoint         string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	Environment      string  `yaml:"environment"`
	SampleRatio      float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
	ExportIntervalMS int     `yaml:"exportIntervalMS" validate:"gte=0"`
}

// ExportInterval returns the metric push period.
func (t TelemetryConfig) ExportInterval() time.Duration {
	return time.Duration(t.ExportIntervalMS) * time.Millisecond
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// ZerologLevel returns the configured level, info if unparseable.
func (l LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Trust     TrustConfig     `yaml:"trust"`
	Poll      PollConfig      `yaml:"poll"`
	Location  LocationConfig  `yaml:"location"`
	Link      LinkConfig      `yaml:"link"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Display   DisplayConfig   `yaml:"display"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
// Backend.Host has no default and must be configured.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Port:          443,
			TLS:           true,
			TimeoutMS:     8000,
			WindowMinutes: 30,
		},
		Trust: TrustConfig{
			Mode: "accept-all",
		},
		Poll: PollConfig{
			IntervalMS:    30_000,
			TickMS:        1000,
			Capacity:      8,
			OfflinePolicy: "retain",
		},
		Location: LocationConfig{
			Source: "static",
			Baud:   9600,
		},
		Breaker: BreakerConfig{
			Enabled:             false,
			ConsecutiveFailures: 5,
			OpenTimeoutMS:       120_000,
		},
		API: APIConfig{
			Enabled:           true,
			Addr:              ":8080",
			RequestsPerMinute: 120,
		},
		Telemetry: TelemetryConfig{
			Endpoint:         "localhost:4317",
			Environment:      "development",
			SampleRatio:      0.1,
			ExportIntervalMS: 60_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// LoadFromEnv loads using the file named by TRAMBOARD_CONFIG, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(PathEnv))
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
