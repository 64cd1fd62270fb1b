// SPDX-License-Identifier: MIT

// Package config loads eventmaphdr configuration with the precedence
// ENV > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xchem/eventmaphdr/internal/ccp4"
)

// Defaults.
const (
	DefaultPattern        = "*event*.ccp4"
	DefaultSpacegroup     = "P 1"
	DefaultWorkers        = 8
	DefaultListenAddr     = ":8080"
	DefaultMetricsAddr    = ":9090"
	DefaultRescanInterval = 30 * time.Second
	DefaultWatchDebounce  = 2 * time.Second
	DefaultRateLimitRPS   = 10
	DefaultRateLimitBurst = 20
)

// AppConfig is the resolved application configuration.
type AppConfig struct {
	// PanDDADir is the PanDDA output root containing processed_datasets.
	PanDDADir string
	// DataDir holds the journal database and other state the tool owns.
	DataDir string
	// Pattern is the event map glob applied inside each dataset dir.
	Pattern string
	// Spacegroup is the target spacegroup symbol written into headers.
	Spacegroup string
	// Workers is the rewrite pool size.
	Workers int
	// DryRun reports what would change without writing any map.
	DryRun bool

	// ListenAddr is the API listen address in serve mode.
	ListenAddr string
	// APIToken guards mutating API routes when non-empty.
	APIToken string

	MetricsEnabled bool
	MetricsAddr    string

	WatchEnabled   bool
	RescanInterval time.Duration
	WatchDebounce  time.Duration

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	OTELEnabled    bool
	OTELExporter   string
	OTELEndpoint   string
	OTELSampleRate float64

	LogLevel string
	Version  string
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Pattern:          DefaultPattern,
		Spacegroup:       DefaultSpacegroup,
		Workers:          DefaultWorkers,
		ListenAddr:       DefaultListenAddr,
		MetricsAddr:      DefaultMetricsAddr,
		RescanInterval:   DefaultRescanInterval,
		WatchDebounce:    DefaultWatchDebounce,
		RateLimitEnabled: true,
		RateLimitRPS:     DefaultRateLimitRPS,
		RateLimitBurst:   DefaultRateLimitBurst,
		OTELExporter:     "grpc",
		OTELSampleRate:   1.0,
		LogLevel:         "info",
	}
}

// JournalPath returns the location of the sqlite journal, or "" when no
// DataDir is configured (journalling disabled).
func (c AppConfig) JournalPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "journal.db")
}

// Validate fails fast on configurations no run could succeed with.
func Validate(cfg AppConfig) error {
	if cfg.PanDDADir == "" {
		return fmt.Errorf("PanDDA directory is not set (EMH_PANDDA_DIR)")
	}
	if !filepath.IsAbs(cfg.PanDDADir) {
		return fmt.Errorf("PanDDA directory must be absolute: %s", cfg.PanDDADir)
	}
	info, err := os.Stat(cfg.PanDDADir)
	if err != nil {
		return fmt.Errorf("PanDDA directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("PanDDA directory is not a directory: %s", cfg.PanDDADir)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if _, err := filepath.Match(cfg.Pattern, "sample.ccp4"); err != nil {
		return fmt.Errorf("invalid event map pattern %q: %w", cfg.Pattern, err)
	}
	if _, err := ccp4.FindSpacegroupByName(cfg.Spacegroup); err != nil {
		return fmt.Errorf("invalid target spacegroup: %w", err)
	}
	if cfg.OTELEnabled {
		switch cfg.OTELExporter {
		case "grpc", "http":
		default:
			return fmt.Errorf("invalid OTLP exporter %q (supported: grpc, http)", cfg.OTELExporter)
		}
		if cfg.OTELEndpoint == "" {
			return fmt.Errorf("OTLP tracing enabled but EMH_OTEL_ENDPOINT is not set")
		}
	}
	return nil
}
