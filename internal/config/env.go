package config

import (
	"fmt"
	"strconv"
)

type envBinding struct {
	key string
	set func(string) error
}

func envBindings(cfg *Config) []envBinding {
	return []envBinding{
		{"TRAMBOARD_BACKEND_HOST", setString(&cfg.Backend.Host)},
		{"TRAMBOARD_BACKEND_PORT", setInt(&cfg.Backend.Port)},
		{"TRAMBOARD_BACKEND_TLS", setBool(&cfg.Backend.TLS)},
		{"TRAMBOARD_BACKEND_TIMEOUT_MS", setInt(&cfg.Backend.TimeoutMS)},
		{"TRAMBOARD_BACKEND_WINDOW_MINUTES", setInt(&cfg.Backend.WindowMinutes)},
		{"TRAMBOARD_BACKEND_MAX_RESPONSE_BYTES", setInt64(&cfg.Backend.MaxResponseBytes)},

		{"TRAMBOARD_TRUST_MODE", setString(&cfg.Trust.Mode)},
		{"TRAMBOARD_TRUST_FINGERPRINT", setString(&cfg.Trust.Fingerprint)},
		{"TRAMBOARD_TRUST_CA_FILE", setString(&cfg.Trust.CAFile)},

		{"TRAMBOARD_POLL_INTERVAL_MS", setUint32(&cfg.Poll.IntervalMS)},
		{"TRAMBOARD_TICK_MS", setInt(&cfg.Poll.TickMS)},
		{"TRAMBOARD_CAPACITY", setInt(&cfg.Poll.Capacity)},
		{"TRAMBOARD_OFFLINE_POLICY", setString(&cfg.Poll.OfflinePolicy)},
		{"TRAMBOARD_DOCUMENT_BUDGET", setInt(&cfg.Poll.DocumentBudget)},

		{"TRAMBOARD_LOCATION_SOURCE", setString(&cfg.Location.Source)},
		{"TRAMBOARD_LOCATION_LAT", setFloat(&cfg.Location.Latitude)},
		{"TRAMBOARD_LOCATION_LON", setFloat(&cfg.Location.Longitude)},
		{"TRAMBOARD_LOCATION_DEVICE", setString(&cfg.Location.Device)},
		{"TRAMBOARD_LOCATION_BAUD", setInt(&cfg.Location.Baud)},
		{"TRAMBOARD_LOCATION_ADDR", setString(&cfg.Location.Address)},
		{"TRAMBOARD_LOCATION_MAX_AGE_MS", setInt(&cfg.Location.MaxAgeMS)},

		{"TRAMBOARD_LINK_INTERFACE", setString(&cfg.Link.Interface)},

		{"TRAMBOARD_BREAKER_ENABLED", setBool(&cfg.Breaker.Enabled)},
		{"TRAMBOARD_BREAKER_FAILURES", setUint32(&cfg.Breaker.ConsecutiveFailures)},
		{"TRAMBOARD_BREAKER_OPEN_TIMEOUT_MS", setInt(&cfg.Breaker.OpenTimeoutMS)},

		{"TRAMBOARD_DISPLAY_CONSOLE", setBool(&cfg.Display.Console)},

		{"TRAMBOARD_API_ENABLED", setBool(&cfg.API.Enabled)},
		{"TRAMBOARD_API_ADDR", setString(&cfg.API.Addr)},
		{"TRAMBOARD_API_RATE_LIMIT", setInt(&cfg.API.RequestsPerMinute)},

		{"OTEL_ENABLED", setBool(&cfg.Telemetry.Enabled)},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", setString(&cfg.Telemetry.Endpoint)},
		{"OTEL_TRACES_SAMPLER_ARG", setFloat(&cfg.Telemetry.SampleRatio)},
		{"OTEL_METRIC_EXPORT_INTERVAL", setInt(&cfg.Telemetry.ExportIntervalMS)},
		{"APP_ENV", setString(&cfg.Telemetry.Environment)},

		{"TRAMBOARD_LOG_LEVEL", setString(&cfg.Log.Level)},
		{"TRAMBOARD_LOG_PRETTY", setBool(&cfg.Log.Pretty)},
	}
}

// applyEnv overrides cfg with every set, non-empty variable.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings(cfg) {
		value, ok := lookup(b.key)
		if !ok || value == "" {
			continue
		}
		if err := b.set(value); err != nil {
			return fmt.Errorf("%w %s=%q: %w", ErrInvalidEnv, b.key, value, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setUint32(dst *uint32) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		*dst = uint32(n)
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}
