package scratch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"meico/internal/logging"
)

// LockFileName is the service lock kept in the scratch root.
const LockFileName = "meicod.lock"

// SweepResult contains the outcome of a stale area sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs an area path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// SweepStale removes req-* areas under root older than maxAge. A zero maxAge
// removes every area.
func SweepStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) SweepResult {
	result := SweepResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), areaPrefix) {
			continue
		}

		dirPath := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Error: err})
			logging.WithContext(ctx, logger).Warn("failed to remove stale scratch area",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scratch_sweep_failed"),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logging.WithContext(ctx, logger).Info("removed stale scratch area",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "scratch_sweep"),
		)
	}

	return result
}

// Lock takes the exclusive service lock in root. The returned lock must be
// unlocked on shutdown.
func Lock(root string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(root, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another meicod instance is using %s", root)
	}
	return lock, nil
}
