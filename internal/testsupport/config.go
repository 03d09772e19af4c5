package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"meico/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SoundbankDir = filepath.Join(base, "soundbanks")
	cfgVal.Engine.JarPath = filepath.Join(base, "meico.jar")
	cfgVal.Service.Bind = "127.0.0.1:0"
	cfgVal.Cleanup.RetryIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken enables bearer auth on the service.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.APIToken = token
	}
}

// WithSoundbank registers a named soundbank and writes a placeholder file for it.
func WithSoundbank(name string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.cfg.Paths.SoundbankDir, name+".sf2")
		WriteFile(b.t, path, 64)
		if b.cfg.Soundbanks == nil {
			b.cfg.Soundbanks = map[string]string{}
		}
		b.cfg.Soundbanks[name] = path
	}
}

// WithEngineJar writes a placeholder engine jar at the configured path.
func WithEngineJar() ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, b.cfg.Engine.JarPath, 16)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the java binary is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Engine.JavaBinary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScratchDir)
}
