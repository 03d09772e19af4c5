package pipeline

import (
	"errors"
	"fmt"

	"meico/internal/engine"
	"meico/internal/services"
)

// StageError is the single failure a run returns. It names the stage and
// wraps a classified services error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage %s failed", e.Stage)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// classify tags err with the stage and the most specific marker available.
func classify(stage Stage, err error) *StageError {
	var existing *StageError
	if errors.As(err, &existing) {
		return existing
	}
	if tagged, ok := err.(*services.Error); ok && tagged.Stage == string(stage) {
		return &StageError{Stage: stage, Err: tagged}
	}

	marker := services.ErrStageFailure
	message := ""
	switch {
	case errors.Is(err, engine.ErrEmptyDocument):
		marker = services.ErrMissingInputFile
		message = "MEI file could not be loaded"
	case errors.Is(err, services.ErrMissingDependency):
		marker = services.ErrMissingDependency
	case errors.Is(err, services.ErrInvalidInput):
		marker = services.ErrInvalidInput
	case errors.Is(err, services.ErrMissingInputFile):
		marker = services.ErrMissingInputFile
	case errors.Is(err, services.ErrEmptyResult):
		marker = services.ErrEmptyResult
	case errors.Is(err, services.ErrConfiguration):
		marker = services.ErrConfiguration
	}
	return &StageError{
		Stage: stage,
		Err:   services.Wrap(marker, string(stage), "", message, err),
	}
}

// fail builds a stage error with an explicit marker.
func fail(stage Stage, marker error, message string) *StageError {
	return &StageError{
		Stage: stage,
		Err:   services.Wrap(marker, string(stage), "", message, nil),
	}
}
