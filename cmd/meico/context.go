package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"meico/internal/config"
	"meico/internal/engine"
	"meico/internal/engine/bridge"
	"meico/internal/logging"
	"meico/internal/services"
)

// engineFactory builds the engine for one conversion rooted at workDir.
type engineFactory func(cfg *config.Config, logger *slog.Logger, workDir string) (engine.Engine, error)

func bridgeEngine(cfg *config.Config, logger *slog.Logger, workDir string) (engine.Engine, error) {
	return bridge.NewFactory(cfg.Engine, bridge.WithLogger(logger)).Engine(workDir)
}

type commandContext struct {
	configFlag *string
	newEngine  engineFactory

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, newEngine engineFactory) *commandContext {
	if newEngine == nil {
		newEngine = bridgeEngine
	}
	return &commandContext{
		configFlag: configFlag,
		newEngine:  newEngine,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "load config", err.Error(), err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "ensure directories", err.Error(), err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger logs to <log_dir>/meico.log only, keeping the terminal for
// progress output.
func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil || cfg.Paths.LogDir == "" {
			c.logger = logging.NewNop()
			return
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "meico.log")
		logger, err := logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Outputs: []string{logPath},
		})
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func usageError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return services.Wrap(services.ErrConfiguration, "", "usage", msg, nil)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
