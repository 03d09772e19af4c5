package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"meico/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MEICO_JAR", "")
	t.Setenv("MEICO_API_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantScratch := filepath.Join(tempHome, ".local", "share", "meico", "scratch")
	if cfg.Paths.ScratchDir != wantScratch {
		t.Fatalf("unexpected scratch dir: got %q want %q", cfg.Paths.ScratchDir, wantScratch)
	}
	wantJar := filepath.Join(tempHome, ".local", "share", "meico", "meico.jar")
	if cfg.Engine.JarPath != wantJar {
		t.Fatalf("unexpected jar path: got %q want %q", cfg.Engine.JarPath, wantJar)
	}
	if cfg.Service.Bind != "127.0.0.1:8001" {
		t.Fatalf("unexpected bind: %q", cfg.Service.Bind)
	}
	if cfg.Engine.TicksPerBeat != 720 {
		t.Fatalf("unexpected ticks per beat: %d", cfg.Engine.TicksPerBeat)
	}
	if cfg.Defaults.Tempo != 120 {
		t.Fatalf("unexpected default tempo: %v", cfg.Defaults.Tempo)
	}
	if cfg.Defaults.DontUseChannel10 {
		t.Fatal("expected channel 10 to be usable by default")
	}
	if cfg.RetryInterval() != 5*time.Second {
		t.Fatalf("unexpected retry interval: %s", cfg.RetryInterval())
	}
	if cfg.StaleAfter() != time.Hour {
		t.Fatalf("unexpected stale age: %s", cfg.StaleAfter())
	}
	if cfg.MaxUploadBytes() != 32<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes())
	}
	if cfg.Service.APIToken != "" {
		t.Fatalf("expected empty api token, got %q", cfg.Service.APIToken)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MEICO_JAR", "")
	t.Setenv("MEICO_API_TOKEN", "")

	soundbanks := filepath.Join(tempHome, "banks")
	configPath := filepath.Join(t.TempDir(), "meico.toml")
	content := `
[paths]
scratch_dir = "~/scratch"
soundbank_dir = "` + soundbanks + `"

[engine]
jar_path = "/opt/meico/meico.jar"

[service]
bind = "0.0.0.0:9000"
api_token = "  secret  "

[defaults]
tempo = 96.5
dont_use_channel_10 = true

[soundbanks]
Fluid = "FluidR3_GM.sf2"
abs = "/srv/sf/arachno.sf2"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.ScratchDir != filepath.Join(tempHome, "scratch") {
		t.Fatalf("unexpected scratch dir: %q", cfg.Paths.ScratchDir)
	}
	if cfg.Engine.JarPath != "/opt/meico/meico.jar" {
		t.Fatalf("unexpected jar path: %q", cfg.Engine.JarPath)
	}
	if cfg.Service.Bind != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind: %q", cfg.Service.Bind)
	}
	if cfg.Service.APIToken != "secret" {
		t.Fatalf("expected trimmed token, got %q", cfg.Service.APIToken)
	}
	if cfg.Defaults.Tempo != 96.5 || !cfg.Defaults.DontUseChannel10 {
		t.Fatalf("unexpected defaults: %+v", cfg.Defaults)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}

	path, ok := cfg.SoundbankPath("FLUID")
	if !ok {
		t.Fatal("expected soundbank lookup to be case-insensitive")
	}
	if path != filepath.Join(soundbanks, "FluidR3_GM.sf2") {
		t.Fatalf("unexpected soundbank path: %q", path)
	}
	if path, _ := cfg.SoundbankPath("abs"); path != "/srv/sf/arachno.sf2" {
		t.Fatalf("absolute soundbank path should be kept, got %q", path)
	}
	if _, ok := cfg.SoundbankPath("missing"); ok {
		t.Fatal("unknown soundbank should not resolve")
	}
	if names := cfg.SoundbankNames(); strings.Join(names, ",") != "abs,fluid" {
		t.Fatalf("unexpected soundbank names: %v", names)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "meico.toml")
	content := `
[engine]
jar_path = "/from/file.jar"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEICO_JAR", "/from/env.jar")
	t.Setenv("MEICO_API_TOKEN", "env-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engine.JarPath != "/from/env.jar" {
		t.Errorf("expected jar path from env, got %q", cfg.Engine.JarPath)
	}
	if cfg.Service.APIToken != "env-token" {
		t.Errorf("expected api token from env, got %q", cfg.Service.APIToken)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(configPath, []byte("[engine\njar_path ="), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[soundbanks]") {
		t.Fatalf("sample config missing soundbanks section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.ScratchDir, "meico") {
		t.Fatalf("expected scratch dir to contain meico, got %q", cfg.Paths.ScratchDir)
	}
	if cfg.Engine.TicksPerBeat != 720 {
		t.Fatalf("expected sample ticks_per_beat 720, got %d", cfg.Engine.TicksPerBeat)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.ScratchDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero tempo", func(c *config.Config) { c.Defaults.Tempo = 0 }, "defaults.tempo"},
		{"negative tempo", func(c *config.Config) { c.Defaults.Tempo = -10 }, "defaults.tempo"},
		{"ticks", func(c *config.Config) { c.Engine.TicksPerBeat = 0 }, "engine.ticks_per_beat"},
		{"jar", func(c *config.Config) { c.Engine.JarPath = "" }, "engine.jar_path"},
		{"bind", func(c *config.Config) { c.Service.Bind = "" }, "service.bind"},
		{"upload", func(c *config.Config) { c.Service.MaxUploadMiB = 0 }, "service.max_upload_mib"},
		{"retry", func(c *config.Config) { c.Cleanup.RetryIntervalSeconds = 0 }, "cleanup.retry_interval_seconds"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
