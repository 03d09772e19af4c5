package logging

import (
	"context"
	"log/slog"

	"meico/internal/services"
)

// Structured field keys shared by every log line. FieldSurface is "cli" or
// "http"; FieldEventType classifies a line for filtering; FieldErrorHint is
// the operator's next step and FieldImpact the consequence of a warning.
const (
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldSurface   = "surface"
	FieldRequestID = "request_id"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

func contextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var fields []any
	if surface, ok := services.SurfaceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSurface, surface))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns logger tagged with the surface, request ID and stage
// carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
