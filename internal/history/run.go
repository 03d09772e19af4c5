package history

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"meico/internal/engine"
	"meico/internal/fileutil"
	"meico/internal/pipeline"
	"meico/internal/request"
	"meico/internal/services"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ArtifactRecord describes one file a run produced.
type ArtifactRecord struct {
	Kind      string `json:"kind"`
	Movement  int    `json:"movement"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256,omitempty"`
}

// Run is one conversion request as persisted in the ledger.
type Run struct {
	ID           string           `json:"id"`
	Surface      string           `json:"surface"`
	Source       string           `json:"source"`
	Outputs      []string         `json:"outputs"`
	Stages       []string         `json:"stages"`
	Status       Status           `json:"status"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorStage   string           `json:"error_stage,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	DurationMS   int64            `json:"duration_ms"`
	Artifacts    []ArtifactRecord `json:"artifacts"`
}

// Failed reports whether the run ended with an error.
func (r Run) Failed() bool { return r.Status == StatusFailed }

// NewRun summarizes a finished sequencer run. Artifact files are hashed while
// they still exist, so callers build the record before releasing scratch space.
func NewRun(id, surface string, src engine.Source, cfg request.Config, started time.Time, result pipeline.Result, runErr error) Run {
	run := Run{
		ID:         id,
		Surface:    surface,
		Source:     sourceName(src),
		Outputs:    cfg.Outputs(),
		Status:     StatusSucceeded,
		StartedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
	}
	for _, stage := range result.Stages {
		run.Stages = append(run.Stages, string(stage))
	}
	for _, artifact := range result.Artifacts {
		run.Artifacts = append(run.Artifacts, describeArtifact(artifact))
	}
	if runErr != nil {
		details := services.Details(runErr)
		run.Status = StatusFailed
		run.ErrorKind = details.Kind
		run.ErrorStage = details.Stage
		run.ErrorMessage = details.Message
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			run.ErrorStage = string(stageErr.Stage)
		}
	}
	return run
}

func sourceName(src engine.Source) string {
	if src.Name != "" {
		return src.Name
	}
	return filepath.Base(src.Path)
}

func describeArtifact(artifact pipeline.Artifact) ArtifactRecord {
	record := ArtifactRecord{
		Kind:     string(artifact.Kind),
		Movement: artifact.Movement,
		Name:     filepath.Base(artifact.Path),
	}
	if info, err := os.Stat(artifact.Path); err == nil {
		record.SizeBytes = info.Size()
	}
	if sum, err := fileutil.SHA256(artifact.Path); err == nil {
		record.SHA256 = sum
	}
	return record
}
