package bridge

import (
	"meico/internal/config"
	"meico/internal/deps"
	"meico/internal/engine"
)

// Factory builds one bridge client per working directory. Every call first
// confirms that the Java runtime and the engine jar are present, so a missing
// dependency is reported before any conversion starts.
type Factory struct {
	cfg  config.Engine
	opts []Option
}

// NewFactory returns a Factory for cfg; opts apply to every client.
func NewFactory(cfg config.Engine, opts ...Option) *Factory {
	return &Factory{cfg: cfg, opts: opts}
}

// Requirements lists the dependencies a bridge client needs.
func Requirements(cfg config.Engine) []deps.Requirement {
	return []deps.Requirement{
		{
			Name:        "Java",
			Command:     cfg.JavaBinary,
			Description: "Runs the meico engine",
		},
		{
			Name:        "meico engine",
			File:        cfg.JarPath,
			Description: "Conversion engine jar",
		},
	}
}

// Check reports a missing-dependency error when the runtime or jar is absent.
func (f *Factory) Check() error {
	return deps.Missing(deps.CheckBinaries(Requirements(f.cfg)))
}

// Engine returns a client rooted at workDir.
func (f *Factory) Engine(workDir string) (engine.Engine, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	client, err := New(f.cfg, workDir, f.opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
