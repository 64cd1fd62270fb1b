// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "v1.2.3")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, DefaultPattern, cfg.Pattern)
	require.Equal(t, DefaultSpacegroup, cfg.Spacegroup)
	require.Equal(t, DefaultWorkers, cfg.Workers)
	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.Equal(t, "v1.2.3", cfg.Version)
	require.True(t, cfg.RateLimitEnabled)
	require.False(t, cfg.DryRun)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
panddaDir: /data/pandda
workers: 4
dryRun: true
watch:
  enabled: true
  rescanInterval: 1m
metrics:
  enabled: true
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o640))

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	require.Equal(t, "/data/pandda", cfg.PanDDADir)
	require.Equal(t, 4, cfg.Workers)
	require.True(t, cfg.DryRun)
	require.True(t, cfg.WatchEnabled)
	require.Equal(t, time.Minute, cfg.RescanInterval)
	require.True(t, cfg.MetricsEnabled)
	require.Equal(t, ":9999", cfg.MetricsAddr)
	// Untouched fields keep defaults.
	require.Equal(t, DefaultPattern, cfg.Pattern)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 4\npanddaDir: /from/file\n"), 0o640))

	t.Setenv("EMH_WORKERS", "16")
	t.Setenv("EMH_PANDDA_DIR", "/from/env")

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Workers)
	require.Equal(t, "/from/env", cfg.PanDDADir)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := NewLoader("/nonexistent/config.yaml", "dev").Load()
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not an int\n"), 0o640))
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("EMH_TEST_STR", "hello")
	t.Setenv("EMH_TEST_INT", "42")
	t.Setenv("EMH_TEST_BAD_INT", "nope")
	t.Setenv("EMH_TEST_BOOL", "yes")
	t.Setenv("EMH_TEST_DUR", "90s")
	t.Setenv("EMH_TEST_FLOAT", "0.25")
	t.Setenv("EMH_TEST_EMPTY", "")

	require.Equal(t, "hello", ParseString("EMH_TEST_STR", "d"))
	require.Equal(t, "d", ParseString("EMH_TEST_EMPTY", "d"))
	require.Equal(t, "d", ParseString("EMH_TEST_UNSET", "d"))
	require.Equal(t, 42, ParseInt("EMH_TEST_INT", 1))
	require.Equal(t, 1, ParseInt("EMH_TEST_BAD_INT", 1))
	require.True(t, ParseBool("EMH_TEST_BOOL", false))
	require.False(t, ParseBool("EMH_TEST_UNSET", false))
	require.Equal(t, 90*time.Second, ParseDuration("EMH_TEST_DUR", time.Second))
	require.Equal(t, 0.25, ParseFloat("EMH_TEST_FLOAT", 1.0))
}

func TestValidate(t *testing.T) {
	root := t.TempDir()

	valid := Defaults()
	valid.PanDDADir = root
	require.NoError(t, Validate(valid))

	t.Run("missing dir", func(t *testing.T) {
		cfg := Defaults()
		require.Error(t, Validate(cfg))
	})

	t.Run("relative dir", func(t *testing.T) {
		cfg := valid
		cfg.PanDDADir = "relative/path"
		require.Error(t, Validate(cfg))
	})

	t.Run("nonexistent dir", func(t *testing.T) {
		cfg := valid
		cfg.PanDDADir = filepath.Join(root, "missing")
		require.Error(t, Validate(cfg))
	})

	t.Run("zero workers", func(t *testing.T) {
		cfg := valid
		cfg.Workers = 0
		require.Error(t, Validate(cfg))
	})

	t.Run("bad pattern", func(t *testing.T) {
		cfg := valid
		cfg.Pattern = "["
		require.Error(t, Validate(cfg))
	})

	t.Run("bad spacegroup", func(t *testing.T) {
		cfg := valid
		cfg.Spacegroup = "Q 9"
		require.Error(t, Validate(cfg))
	})

	t.Run("otel without endpoint", func(t *testing.T) {
		cfg := valid
		cfg.OTELEnabled = true
		cfg.OTELEndpoint = ""
		require.Error(t, Validate(cfg))
	})
}

func TestJournalPath(t *testing.T) {
	cfg := Defaults()
	require.Empty(t, cfg.JournalPath())
	cfg.DataDir = "/var/lib/eventmaphdr"
	require.Equal(t, filepath.Join("/var/lib/eventmaphdr", "journal.db"), cfg.JournalPath())
}
