// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlDuration accepts Go duration strings ("30s", "1m") in YAML.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// fileConfig is the YAML schema of an optional config file. Every field
// is a pointer so absence can be told apart from the zero value.
type fileConfig struct {
	PanDDADir  *string `yaml:"panddaDir"`
	DataDir    *string `yaml:"dataDir"`
	Pattern    *string `yaml:"pattern"`
	Spacegroup *string `yaml:"spacegroup"`
	Workers    *int    `yaml:"workers"`
	DryRun     *bool   `yaml:"dryRun"`
	LogLevel   *string `yaml:"logLevel"`

	API *struct {
		ListenAddr *string `yaml:"listenAddr"`
		Token      *string `yaml:"token"`
		RateLimit  *struct {
			Enabled *bool `yaml:"enabled"`
			RPS     *int  `yaml:"rps"`
			Burst   *int  `yaml:"burst"`
		} `yaml:"rateLimit"`
	} `yaml:"api"`

	Metrics *struct {
		Enabled *bool   `yaml:"enabled"`
		Addr    *string `yaml:"addr"`
	} `yaml:"metrics"`

	Watch *struct {
		Enabled        *bool         `yaml:"enabled"`
		RescanInterval *yamlDuration `yaml:"rescanInterval"`
		Debounce       *yamlDuration `yaml:"debounce"`
	} `yaml:"watch"`

	OTEL *struct {
		Enabled    *bool    `yaml:"enabled"`
		Exporter   *string  `yaml:"exporter"`
		Endpoint   *string  `yaml:"endpoint"`
		SampleRate *float64 `yaml:"sampleRate"`
	} `yaml:"otel"`
}

// Loader resolves the configuration from defaults, an optional YAML
// file, and the environment, in increasing precedence.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a loader. path may be empty (ENV-only).
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load builds the effective configuration. A missing config file at an
// explicitly supplied path is an error; an empty path is not.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.path != "" {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return AppConfig{}, fmt.Errorf("parse config file %s: %w", l.path, err)
		}
		applyFile(&cfg, &fc)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *AppConfig, fc *fileConfig) {
	setString(&cfg.PanDDADir, fc.PanDDADir)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.Pattern, fc.Pattern)
	setString(&cfg.Spacegroup, fc.Spacegroup)
	setInt(&cfg.Workers, fc.Workers)
	setBool(&cfg.DryRun, fc.DryRun)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.API != nil {
		setString(&cfg.ListenAddr, fc.API.ListenAddr)
		setString(&cfg.APIToken, fc.API.Token)
		if fc.API.RateLimit != nil {
			setBool(&cfg.RateLimitEnabled, fc.API.RateLimit.Enabled)
			setInt(&cfg.RateLimitRPS, fc.API.RateLimit.RPS)
			setInt(&cfg.RateLimitBurst, fc.API.RateLimit.Burst)
		}
	}
	if fc.Metrics != nil {
		setBool(&cfg.MetricsEnabled, fc.Metrics.Enabled)
		setString(&cfg.MetricsAddr, fc.Metrics.Addr)
	}
	if fc.Watch != nil {
		setBool(&cfg.WatchEnabled, fc.Watch.Enabled)
		setDuration(&cfg.RescanInterval, fc.Watch.RescanInterval)
		setDuration(&cfg.WatchDebounce, fc.Watch.Debounce)
	}
	if fc.OTEL != nil {
		setBool(&cfg.OTELEnabled, fc.OTEL.Enabled)
		setString(&cfg.OTELExporter, fc.OTEL.Exporter)
		setString(&cfg.OTELEndpoint, fc.OTEL.Endpoint)
		setFloat(&cfg.OTELSampleRate, fc.OTEL.SampleRate)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *yamlDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
