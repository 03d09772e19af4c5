package services

import (
	"errors"
	"strings"
)

var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingInputFile  = errors.New("missing input file")
	ErrEmptyResult       = errors.New("empty result")
	ErrConfiguration     = errors.New("configuration error")
	ErrStageFailure      = errors.New("stage failure")
)

// Process exit codes. The non-zero values follow sysexits.h where one exists.
const (
	ExitOK          = 0
	ExitEmptyResult = 1
	ExitUsage       = 64
	ExitDataErr     = 65
	ExitNoInput     = 66
	ExitUnavailable = 69
	ExitSoftware    = 70
)

// Error is a classified failure carrying the stage and operation that produced it.
// Both the marker and the underlying cause are reachable through errors.Is/As.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	var b strings.Builder
	if e.Marker != nil {
		b.WriteString(e.Marker.Error())
		b.WriteString(": ")
	}
	b.WriteString(detail)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrStageFailure
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the surface-facing summary of a failure.
type ErrorDetails struct {
	Kind    string
	Stage   string
	Message string
}

// Details extracts the classification and the most specific human-readable
// message carried by err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err)}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Message = svcErr.Message
		if details.Message == "" && svcErr.Cause != nil {
			details.Message = Details(svcErr.Cause).Message
		}
	}
	if details.Message == "" {
		details.Message = strings.TrimSpace(err.Error())
	}
	return details
}

// Kind returns a stable identifier for the marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingDependency):
		return "missing_dependency"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrMissingInputFile):
		return "missing_input_file"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrStageFailure):
		return "stage_failure"
	default:
		return "internal"
	}
}

// ExitCode maps a conversion error to the CLI process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrMissingDependency):
		return ExitUnavailable
	case errors.Is(err, ErrInvalidInput):
		return ExitDataErr
	case errors.Is(err, ErrMissingInputFile):
		return ExitNoInput
	case errors.Is(err, ErrEmptyResult):
		return ExitEmptyResult
	case errors.Is(err, ErrConfiguration):
		return ExitUsage
	default:
		return ExitSoftware
	}
}

// HTTPStatus maps a conversion error to the service response status.
// Classified request and engine failures are client errors; anything
// unclassified is reported as an internal failure.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrMissingDependency):
		return 503
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMissingInputFile),
		errors.Is(err, ErrEmptyResult),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrStageFailure):
		return 400
	default:
		return 500
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
