package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meico/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("space", dir, 1); !r.Passed {
		t.Fatalf("expected pass with 1 byte minimum: %s", r.Detail)
	}
	if r := CheckFreeSpace("space", dir, ^uint64(0)); r.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if r := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckSoundbank(t *testing.T) {
	dir := t.TempDir()
	bank := filepath.Join(dir, "fluid.sf2")
	if err := os.WriteFile(bank, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckSoundbank("fluid", bank); !r.Passed || r.Name != "Soundbank fluid" {
		t.Fatalf("expected pass, got %+v", r)
	}
	r := CheckSoundbank("gone", filepath.Join(dir, "gone.sf2"))
	if r.Passed || !strings.Contains(r.Detail, "built-in") {
		t.Fatalf("expected fallback note, got %+v", r)
	}
}

func TestRunAllAndSystemDeps(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Engine.JavaBinary = "meico-test-no-such-java"
	cfg.Engine.JarPath = filepath.Join(base, "meico.jar")
	cfg.Soundbanks = map[string]string{"fluid": filepath.Join(base, "fluid.sf2")}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Soundbank fluid" {
		t.Fatalf("expected only the soundbank to fail, got %+v", failed)
	}

	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if s.Available {
			t.Fatalf("expected %s unavailable", s.Name)
		}
	}
}
