package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.JarPath) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("engine.jar_path is required. Set MEICO_JAR env var or edit %s (create with 'meico config init')", defaultPath)
	}
	if c.Engine.TicksPerBeat <= 0 {
		return errors.New("engine.ticks_per_beat must be positive")
	}
	return nil
}

func (c *Config) validateService() error {
	if strings.TrimSpace(c.Service.Bind) == "" {
		return errors.New("service.bind must be set")
	}
	return ensurePositiveMap(map[string]int{
		"service.max_upload_mib": c.Service.MaxUploadMiB,
	})
}

func (c *Config) validateDefaults() error {
	tempo := c.Defaults.Tempo
	if math.IsNaN(tempo) || math.IsInf(tempo, 0) || tempo <= 0 {
		return errors.New("defaults.tempo must be a positive number")
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if err := ensurePositiveMap(map[string]int{
		"cleanup.retry_interval_seconds": c.Cleanup.RetryIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Cleanup.StaleAfterMinutes < 0 {
		return errors.New("cleanup.stale_after_minutes must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
