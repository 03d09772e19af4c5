package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"meico/internal/config"
)

// DatabaseName is the ledger file created inside the log directory.
const DatabaseName = "history.db"

// DefaultRecentLimit bounds Recent when callers pass a non-positive limit.
const DefaultRecentLimit = 20

const maxRecentLimit = 500

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists conversion runs backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the history database in the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("history: config required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, DatabaseName))
}

// OpenPath opens the database at dbPath, creating the schema when needed.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts run and its artifacts in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return errors.New("history: store closed")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("history: run id required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return retryOnBusy(ctx, func() error {
		return s.insert(ctx, run)
	})
}

func (s *Store) insert(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, surface, source, outputs, stages, status, error_kind, error_stage, error_message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Surface,
		run.Source,
		strings.Join(run.Outputs, ","),
		strings.Join(run.Stages, ","),
		string(run.Status),
		nullableString(run.ErrorKind),
		nullableString(run.ErrorStage),
		nullableString(run.ErrorMessage),
		run.StartedAt.UTC().Format(timeLayout),
		run.DurationMS,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, artifact := range run.Artifacts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts
			(run_id, kind, movement, name, size_bytes, sha256) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, artifact.Kind, artifact.Movement, artifact.Name, artifact.SizeBytes, artifact.SHA256,
		); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, surface, source, outputs, stages, status,
		error_kind, error_stage, error_message, started_at, duration_ms
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	index := make(map[string]int)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		index[run.ID] = len(runs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return runs, nil
	}

	ids := make([]any, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}
	artifactRows, err := s.db.QueryContext(ctx, `SELECT run_id, kind, movement, name, size_bytes, sha256
		FROM artifacts WHERE run_id IN (`+makePlaceholders(len(ids))+`) ORDER BY rowid`, ids...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer artifactRows.Close()
	for artifactRows.Next() {
		var runID string
		var artifact ArtifactRecord
		if err := artifactRows.Scan(&runID, &artifact.Kind, &artifact.Movement, &artifact.Name, &artifact.SizeBytes, &artifact.SHA256); err != nil {
			return nil, err
		}
		if i, ok := index[runID]; ok {
			runs[i].Artifacts = append(runs[i].Artifacts, artifact)
		}
	}
	return runs, artifactRows.Err()
}

// Count returns the number of recorded runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run                       Run
		outputs, stages, status   string
		errKind, errStage, errMsg sql.NullString
		startedRaw                string
	)
	if err := scanner.Scan(&run.ID, &run.Surface, &run.Source, &outputs, &stages, &status,
		&errKind, &errStage, &errMsg, &startedRaw, &run.DurationMS); err != nil {
		return Run{}, err
	}
	run.Outputs = splitList(outputs)
	run.Stages = splitList(stages)
	run.Status = Status(status)
	run.ErrorKind = errKind.String
	run.ErrorStage = errStage.String
	run.ErrorMessage = errMsg.String
	if started, err := time.Parse(timeLayout, startedRaw); err == nil {
		run.StartedAt = started
	}
	return run, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
