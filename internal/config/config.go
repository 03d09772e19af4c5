package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ScratchDir   string `toml:"scratch_dir"`
	LogDir       string `toml:"log_dir"`
	SoundbankDir string `toml:"soundbank_dir"`
}

// Engine describes how the meico conversion engine is launched.
type Engine struct {
	JavaBinary   string `toml:"java_binary"`
	JarPath      string `toml:"jar_path"`
	BridgeClass  string `toml:"bridge_class"`
	TicksPerBeat int    `toml:"ticks_per_beat"`
}

// Service contains settings for the HTTP conversion service.
type Service struct {
	Bind         string `toml:"bind"`
	APIToken     string `toml:"api_token"`
	MaxUploadMiB int    `toml:"max_upload_mib"`
}

// Defaults holds request defaults shared by the CLI and the service.
type Defaults struct {
	Tempo            float64 `toml:"tempo"`
	DontUseChannel10 bool    `toml:"dont_use_channel_10"`
}

// Cleanup tunes scratch area deletion.
type Cleanup struct {
	RetryIntervalSeconds int `toml:"retry_interval_seconds"`
	StaleAfterMinutes    int `toml:"stale_after_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for meico.
//
// Configuration sections by subsystem:
//   - Paths: scratch, log, and soundbank directories
//   - Engine: java binary, engine jar, and sequence resolution
//   - Service: HTTP bind address, bearer token, and upload limit
//   - Defaults: request defaults applied on both surfaces
//   - Cleanup: scratch deletion retry cadence and stale sweep age
//   - Soundbanks: server-side name to soundbank file mapping
//   - Logging: log format and level
type Config struct {
	Paths      Paths             `toml:"paths"`
	Engine     Engine            `toml:"engine"`
	Service    Service           `toml:"service"`
	Defaults   Defaults          `toml:"defaults"`
	Cleanup    Cleanup           `toml:"cleanup"`
	Soundbanks map[string]string `toml:"soundbanks"`
	Logging    Logging           `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meico.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the scratch and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SoundbankPath resolves a soundbank name from the [soundbanks] mapping.
func (c *Config) SoundbankPath(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || c.Soundbanks == nil {
		return "", false
	}
	path, ok := c.Soundbanks[key]
	return path, ok
}

// SoundbankNames lists the configured soundbank names in sorted order.
func (c *Config) SoundbankNames() []string {
	names := make([]string, 0, len(c.Soundbanks))
	for name := range c.Soundbanks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetryInterval is the pause between scratch deletion retry passes.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Cleanup.RetryIntervalSeconds) * time.Second
}

// StaleAfter is the age past which leftover scratch areas are swept at startup.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Cleanup.StaleAfterMinutes) * time.Minute
}

// MaxUploadBytes returns the request body limit for the conversion endpoint.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Service.MaxUploadMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
