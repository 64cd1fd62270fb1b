// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xchem/eventmaphdr/internal/ccp4"
	"github.com/xchem/eventmaphdr/internal/config"
	"github.com/xchem/eventmaphdr/internal/pandda"
)

func writeFixtureMap(t *testing.T, root, dataset string, ispg int32) string {
	t.Helper()
	dir := filepath.Join(root, pandda.ProcessedDatasetsDir, dataset)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	m := &ccp4.Map{
		Header: ccp4.Header{
			NC: 2, NR: 2, NS: 2,
			Mode: ccp4.ModeFloat32,
			NX:   2, NY: 2, NZ: 2,
			Cell: [6]float32{10, 10, 10, 90, 90, 90},
			MapC: 1, MapR: 2, MapS: 3,
			ISpg: ispg,
		},
		Data: []float32{1, 2, 3, 4, 5, 6, 7, 8},
	}
	path := filepath.Join(dir, dataset+"-event_1.ccp4")
	if err := ccp4.WriteFile(path, m); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunOnce(t *testing.T) {
	root := t.TempDir()
	path := writeFixtureMap(t, root, "BAZ2B-x001", 19)

	cfg := config.Defaults()
	cfg.PanDDADir = root
	cfg.Workers = 2

	if code := runOnce(context.Background(), cfg, nil); code != 0 {
		t.Fatalf("runOnce = %d, want 0", code)
	}

	m, err := ccp4.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Header.ISpg != ccp4.SpacegroupP1 {
		t.Errorf("spacegroup = %d, want %d", m.Header.ISpg, ccp4.SpacegroupP1)
	}
}

func TestRunOnceReportsFailures(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, pandda.ProcessedDatasetsDir, "BAZ2B-x001")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "BAZ2B-x001-event_1.ccp4"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.PanDDADir = root
	cfg.Workers = 2

	if code := runOnce(context.Background(), cfg, nil); code != 1 {
		t.Fatalf("runOnce = %d, want 1 for corrupt map", code)
	}
}

func TestResolvePanDDADirRelative(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	dir, err := resolvePanDDADir(".")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(dir) {
		t.Fatalf("resolved dir %q is not absolute", dir)
	}

	cfg := config.Defaults()
	cfg.PanDDADir = dir
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate rejected resolved dir: %v", err)
	}
}

func TestRunOnceMissingRoot(t *testing.T) {
	cfg := config.Defaults()
	cfg.PanDDADir = filepath.Join(t.TempDir(), "nope")
	cfg.Workers = 2

	if code := runOnce(context.Background(), cfg, nil); code != 1 {
		t.Fatalf("runOnce = %d, want 1 for missing root", code)
	}
}
