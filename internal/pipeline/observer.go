package pipeline

import (
	"context"
	"log/slog"
	"time"

	"meico/internal/logging"
	"meico/internal/services"
)

// Observer receives stage progress callbacks.
type Observer interface {
	StageStarted(ctx context.Context, stage Stage)
	StageCompleted(ctx context.Context, stage Stage, elapsed time.Duration)
	StageFailed(ctx context.Context, stage Stage, err error)
}

// LogObserver writes one structured log line per stage transition.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, o.Logger)
}

func (o LogObserver) StageStarted(ctx context.Context, stage Stage) {
	o.logger(ctx).Debug(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
}

func (o LogObserver) StageCompleted(ctx context.Context, stage Stage, elapsed time.Duration) {
	o.logger(ctx).Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
}

func (o LogObserver) StageFailed(ctx context.Context, stage Stage, err error) {
	details := services.Details(err)
	logging.ErrorWithContext(o.logger(ctx), "stage failed", "stage_failure",
		logging.String("error_kind", details.Kind),
		logging.String("error_message", details.Message),
		logging.String(logging.FieldErrorHint, hintFor(details.Kind)),
		logging.Error(err),
	)
}

func hintFor(kind string) string {
	switch kind {
	case "missing_dependency":
		return "install Java and set engine.jar_path (or MEICO_JAR)"
	case "invalid_input":
		return "check the document against the MEI schema"
	case "missing_input_file":
		return "check the input path and that the file contains MEI"
	case "configuration":
		return "check the request options"
	case "empty_result":
		return "the document produced no performance data"
	default:
		return "rerun with --debug and inspect the engine log"
	}
}

type observers []Observer

func (obs observers) StageStarted(ctx context.Context, stage Stage) {
	for _, o := range obs {
		o.StageStarted(ctx, stage)
	}
}

func (obs observers) StageCompleted(ctx context.Context, stage Stage, elapsed time.Duration) {
	for _, o := range obs {
		o.StageCompleted(ctx, stage, elapsed)
	}
}

func (obs observers) StageFailed(ctx context.Context, stage Stage, err error) {
	for _, o := range obs {
		o.StageFailed(ctx, stage, err)
	}
}
