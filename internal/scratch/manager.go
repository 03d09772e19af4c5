package scratch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"meico/internal/logging"
)

const (
	areaPrefix = "req-"
	// DefaultRetryInterval is the pause between deletion retry passes.
	DefaultRetryInterval = 5 * time.Second
)

// Area is a request-scoped scratch directory.
type Area struct {
	id   string
	path string
}

// ID returns the area's unique identifier.
func (a *Area) ID() string { return a.id }

// Path returns the absolute directory path.
func (a *Area) Path() string { return a.path }

// File returns the path of name inside the area.
func (a *Area) File(name string) string {
	return filepath.Join(a.path, filepath.Base(name))
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRetryInterval sets the pause between retry passes.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRemover replaces os.RemoveAll (primarily for tests).
func WithRemover(remove func(string) error) Option {
	return func(m *Manager) {
		if remove != nil {
			m.remove = remove
		}
	}
}

// Manager allocates areas and guarantees their eventual deletion.
type Manager struct {
	root     string
	interval time.Duration
	remove   func(string) error
	logger   *slog.Logger

	mu      sync.Mutex
	pending []string
	wake    chan struct{}
}

// New creates the scratch root if needed and returns a manager for it.
func New(root string, opts ...Option) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("scratch root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	m := &Manager{
		root:     root,
		interval: DefaultRetryInterval,
		remove:   os.RemoveAll,
		logger:   logging.NewNop(),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "scratch")
	return m, nil
}

// Root returns the scratch root directory.
func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh area.
func (m *Manager) Acquire(ctx context.Context) (*Area, error) {
	id := uuid.NewString()
	path := filepath.Join(m.root, areaPrefix+id)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch area: %w", err)
	}
	logging.WithContext(ctx, m.logger).Debug("scratch area acquired",
		logging.String("area", path),
		logging.String(logging.FieldEventType, "scratch_acquire"),
	)
	return &Area{id: id, path: path}, nil
}

// Release deletes the area now or schedules it for retry. It never fails.
func (m *Manager) Release(area *Area) {
	if area == nil || area.path == "" {
		return
	}
	if err := m.remove(area.path); err != nil {
		m.enqueue(area.path)
		logging.WarnWithContext(m.logger, "scratch area deletion deferred", "scratch_cleanup_retry",
			logging.String("area", area.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "deletion is retried automatically"),
			logging.String(logging.FieldImpact, "disk space reclaimed later"),
		)
		return
	}
	m.logger.Debug("scratch area removed",
		logging.String("area", area.path),
		logging.String(logging.FieldEventType, "scratch_cleanup"),
	)
}

func (m *Manager) enqueue(paths ...string) {
	if len(paths) == 0 {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, paths...)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pending returns the paths waiting for deletion.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pending...)
}

// PendingCount returns the number of paths waiting for deletion.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain makes one deletion pass over the queue and returns how many paths
// remain. Paths enqueued while the pass runs are kept for the next pass.
func (m *Manager) Drain() int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	var failed []string
	for _, path := range batch {
		if err := m.remove(path); err != nil {
			failed = append(failed, path)
			m.logger.Debug("scratch area still locked",
				logging.String("area", path),
				logging.Error(err),
			)
			continue
		}
		m.logger.Info("deferred scratch area removed",
			logging.String("area", path),
			logging.String(logging.FieldEventType, "scratch_cleanup"),
		)
	}

	m.mu.Lock()
	m.pending = append(failed, m.pending...)
	remaining := len(m.pending)
	m.mu.Unlock()
	return remaining
}

// Run is the reaper loop. It idles until a deletion fails, then retries the
// queue every interval until the queue is empty. It returns when ctx ends.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}

		for m.PendingCount() > 0 {
			timer := time.NewTimer(m.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			m.Drain()
		}
	}
}

// Close makes a final best-effort pass and logs anything left behind.
func (m *Manager) Close() {
	if remaining := m.Drain(); remaining > 0 {
		logging.WarnWithContext(m.logger, "scratch areas left on disk at shutdown", "scratch_cleanup_failed",
			logging.Int("pending", remaining),
			logging.String(logging.FieldErrorHint, "they are swept at next service start"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
}
