package main

import (
	"os"
	"path/filepath"
	"testing"

	"meico/internal/services"
	"meico/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, code := runCLI(t, env, nil, "config", "validate")
	if code != 0 {
		t.Fatalf("config validate exited %d", code)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, code = runCLI(t, nil, nil, "config", "init", "--path", target)
	if code != 0 {
		t.Fatalf("config init exited %d", code)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, stderr, code := runCLI(t, nil, nil, "config", "init", "--path", target)
	if code != services.ExitUsage {
		t.Fatalf("expected usage exit for existing file, got %d", code)
	}
	requireContains(t, stderr, "already exists")

	if _, _, code := runCLI(t, nil, nil, "config", "init", "--path", target, "--overwrite"); code != 0 {
		t.Fatalf("overwrite exited %d", code)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[engine]\njar_path = \"/opt/meico/meico.jar\"\nticks_per_beat = -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, stderr, code := runCLI(t, env, nil, "config", "validate")
	if code != services.ExitUsage {
		t.Fatalf("expected exit %d, got %d", services.ExitUsage, code)
	}
	requireContains(t, stderr, "ticks_per_beat")
}

func TestCheckReportsMissingEngine(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, code := runCLI(t, env, nil, "check")
	if code != services.ExitUnavailable {
		t.Fatalf("expected exit %d, got %d", services.ExitUnavailable, code)
	}
	requireContains(t, out, "meico engine: no")
}

func TestCheckPassesWithEngineInstalled(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithEngineJar(), testsupport.WithStubbedBinaries())
	out, stderr, code := runCLI(t, env, nil, "check")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stdout=%s stderr=%s)", code, out, stderr)
	}
	requireContains(t, out, "Java: yes")
	requireContains(t, out, "Ready to convert.")
}
