package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizeService()
	if err := c.normalizeSoundbanks(); err != nil {
		return err
	}
	c.normalizeCleanup()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SoundbankDir) == "" {
		c.Paths.SoundbankDir = defaultSoundbankDir
	}
	if c.Paths.SoundbankDir, err = expandPath(c.Paths.SoundbankDir); err != nil {
		return fmt.Errorf("paths.soundbank_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.JavaBinary = strings.TrimSpace(c.Engine.JavaBinary)
	if c.Engine.JavaBinary == "" {
		c.Engine.JavaBinary = defaultJavaBinary
	}
	c.Engine.BridgeClass = strings.TrimSpace(c.Engine.BridgeClass)
	if c.Engine.BridgeClass == "" {
		c.Engine.BridgeClass = defaultBridgeClass
	}
	if value, ok := os.LookupEnv("MEICO_JAR"); ok && strings.TrimSpace(value) != "" {
		c.Engine.JarPath = strings.TrimSpace(value)
	}
	var err error
	if c.Engine.JarPath, err = expandPath(c.Engine.JarPath); err != nil {
		return fmt.Errorf("engine.jar_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeService() {
	c.Service.Bind = strings.TrimSpace(c.Service.Bind)
	if c.Service.Bind == "" {
		c.Service.Bind = defaultServiceBind
	}
	c.Service.APIToken = strings.TrimSpace(c.Service.APIToken)
	if c.Service.APIToken == "" {
		if value, ok := os.LookupEnv("MEICO_API_TOKEN"); ok {
			c.Service.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Service.MaxUploadMiB <= 0 {
		c.Service.MaxUploadMiB = defaultMaxUploadMiB
	}
}

// normalizeSoundbanks lower-cases names and resolves relative files against
// paths.soundbank_dir.
func (c *Config) normalizeSoundbanks() error {
	resolved := make(map[string]string, len(c.Soundbanks))
	for name, file := range c.Soundbanks {
		key := strings.ToLower(strings.TrimSpace(name))
		file = strings.TrimSpace(file)
		if key == "" || file == "" {
			continue
		}
		if !filepath.IsAbs(file) && !strings.HasPrefix(file, "~") {
			file = filepath.Join(c.Paths.SoundbankDir, file)
		}
		expanded, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("soundbanks.%s: %w", key, err)
		}
		resolved[key] = expanded
	}
	c.Soundbanks = resolved
	return nil
}

func (c *Config) normalizeCleanup() {
	if c.Cleanup.RetryIntervalSeconds <= 0 {
		c.Cleanup.RetryIntervalSeconds = defaultRetryIntervalSeconds
	}
	if c.Cleanup.StaleAfterMinutes < 0 {
		c.Cleanup.StaleAfterMinutes = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
