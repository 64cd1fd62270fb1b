// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "processed_datasets", "dataset-a")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"simple child", "processed_datasets/dataset-a", false},
		{"dot", ".", false},
		{"parent escape", "../outside", true},
		{"nested escape", "processed_datasets/../../outside", true},
		{"backslash", `processed_datasets\dataset-a`, true},
		{"absolute", "/etc/passwd", true},
		{"dotdot in name", "processed_datasets/a..b", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tc.rel)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got path %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := ConfineRelPath(root, "escape/file.ccp4"); err == nil {
		t.Fatal("expected symlink escape to be rejected")
	}
}

func TestConfineAbsPath(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "map.ccp4")
	if err := os.WriteFile(inside, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}

	if _, err := ConfineAbsPath(root, inside); err != nil {
		t.Fatalf("inside path rejected: %v", err)
	}
	if _, err := ConfineAbsPath(root, "/etc/passwd"); err == nil {
		t.Fatal("expected outside path to be rejected")
	}
	if _, err := ConfineAbsPath(root, "relative/path"); err == nil {
		t.Fatal("expected relative target to be rejected")
	}
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.ccp4")
	if err := os.WriteFile(file, []byte("data"), 0o640); err != nil {
		t.Fatal(err)
	}

	if err := IsRegularFile(file); err != nil {
		t.Errorf("regular file rejected: %v", err)
	}
	if err := IsRegularFile(dir); err == nil {
		t.Error("directory accepted as regular file")
	}
	if err := IsRegularFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file accepted")
	}
}
