package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"meico/internal/config"
	"meico/internal/deps"
	"meico/internal/history"
	"meico/internal/logging"
	"meico/internal/metrics"
	"meico/internal/preflight"
	"meico/internal/scratch"
)

// Option configures a Daemon.
type Option func(*Daemon)

// WithHistory attaches the run ledger. The daemon closes it on Close.
func WithHistory(store *history.Store) Option {
	return func(d *Daemon) {
		d.history = store
	}
}

// WithScratchOptions passes options through to the scratch manager.
func WithScratchOptions(opts ...scratch.Option) Option {
	return func(d *Daemon) {
		d.scratchOpts = append(d.scratchOpts, opts...)
	}
}

// Daemon holds the shared service state and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	scratch     *scratch.Manager
	scratchOpts []scratch.Option
	history     *history.Store
	metrics     *metrics.Collector

	lock *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	reaper  chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	LockFilePath     string
	ScratchDir       string
	HistoryDBPath    string
	PendingDeletions int
	Dependencies     []deps.Status
}

// New constructs a daemon with its scratch manager and metrics collector.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "daemon"),
	}
	for _, opt := range opts {
		opt(d)
	}

	scratchOpts := append([]scratch.Option{
		scratch.WithLogger(logger),
		scratch.WithRetryInterval(cfg.RetryInterval()),
	}, d.scratchOpts...)
	mgr, err := scratch.New(cfg.Paths.ScratchDir, scratchOpts...)
	if err != nil {
		return nil, fmt.Errorf("scratch manager: %w", err)
	}
	d.scratch = mgr
	d.metrics = metrics.New(mgr.PendingCount)
	return d, nil
}

// Config returns the service configuration.
func (d *Daemon) Config() *config.Config { return d.cfg }

// Scratch returns the scratch manager shared by all requests.
func (d *Daemon) Scratch() *scratch.Manager { return d.scratch }

// History returns the run ledger, or nil when none is attached.
func (d *Daemon) History() *history.Store { return d.history }

// Metrics returns the metrics collector.
func (d *Daemon) Metrics() *metrics.Collector { return d.metrics }

// Start acquires the service lock, sweeps stale scratch areas, and launches
// the deletion reaper.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	lock, err := scratch.Lock(d.scratch.Root())
	if err != nil {
		return err
	}
	d.lock = lock

	swept := scratch.SweepStale(ctx, d.scratch.Root(), d.cfg.StaleAfter(), d.logger)
	if len(swept.Removed) > 0 || len(swept.Errors) > 0 {
		d.logger.Info("stale scratch sweep finished",
			logging.Int("removed", len(swept.Removed)),
			logging.Int("failed", len(swept.Errors)),
			logging.String(logging.FieldEventType, "scratch_sweep_summary"),
		)
	}

	reaperCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.reaper = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		d.scratch.Run(reaperCtx)
	}(d.reaper)

	d.running.Store(true)
	d.logger.Info("meico daemon started",
		logging.String("lock", d.LockPath()),
		logging.String("scratch_dir", d.scratch.Root()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop halts the reaper, makes a final deletion pass, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.reaper != nil {
		<-d.reaper
		d.reaper = nil
	}
	d.scratch.Close()
	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "daemon_unlock_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no meicod is running"),
			)
		}
		d.lock = nil
	}
	d.running.Store(false)
	d.logger.Info("meico daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string {
	return filepath.Join(d.scratch.Root(), scratch.LockFileName)
}

// Status returns the current daemon status including engine dependency checks.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		LockFilePath:     d.LockPath(),
		ScratchDir:       d.scratch.Root(),
		PendingDeletions: d.scratch.PendingCount(),
		Dependencies:     preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if d.history != nil {
		status.HistoryDBPath = d.history.Path()
	}
	return status
}
