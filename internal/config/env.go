// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	xlog "github.com/xchem/eventmaphdr/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. It logs the source for observability.
func ParseString(key, defaultValue string) string {
	logger := xlog.WithComponent("config")
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password"):
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default, falling back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

// ParseBool reads a boolean from an environment variable. It accepts
// "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Bool("default", defaultValue).
				Msg("invalid boolean in environment variable, using default")
		}
	}
	return defaultValue
}

// ParseDuration reads a Go duration (e.g. "30s") from an environment
// variable, falling back to the default on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}

// ParseFloat reads a float64 from an environment variable, falling back
// to the default on parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
	}
	return defaultValue
}

// applyEnv overrides cfg fields from EMH_* variables that are set.
func applyEnv(cfg *AppConfig) {
	cfg.PanDDADir = ParseString("EMH_PANDDA_DIR", cfg.PanDDADir)
	cfg.DataDir = ParseString("EMH_DATA", cfg.DataDir)
	cfg.Pattern = ParseString("EMH_PATTERN", cfg.Pattern)
	cfg.Spacegroup = ParseString("EMH_SPACEGROUP", cfg.Spacegroup)
	cfg.Workers = ParseInt("EMH_WORKERS", cfg.Workers)
	cfg.DryRun = ParseBool("EMH_DRY_RUN", cfg.DryRun)

	cfg.ListenAddr = ParseString("EMH_LISTEN", cfg.ListenAddr)
	cfg.APIToken = ParseString("EMH_API_TOKEN", cfg.APIToken)

	cfg.MetricsEnabled = ParseBool("EMH_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("EMH_METRICS_ADDR", cfg.MetricsAddr)

	cfg.WatchEnabled = ParseBool("EMH_WATCH", cfg.WatchEnabled)
	cfg.RescanInterval = ParseDuration("EMH_RESCAN_INTERVAL", cfg.RescanInterval)
	cfg.WatchDebounce = ParseDuration("EMH_WATCH_DEBOUNCE", cfg.WatchDebounce)

	cfg.RateLimitEnabled = ParseBool("EMH_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPS = ParseInt("EMH_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("EMH_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.OTELEnabled = ParseBool("EMH_OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELExporter = ParseString("EMH_OTEL_EXPORTER", cfg.OTELExporter)
	cfg.OTELEndpoint = ParseString("EMH_OTEL_ENDPOINT", cfg.OTELEndpoint)
	cfg.OTELSampleRate = ParseFloat("EMH_OTEL_SAMPLE_RATE", cfg.OTELSampleRate)

	cfg.LogLevel = ParseString("EMH_LOG_LEVEL", cfg.LogLevel)
}
