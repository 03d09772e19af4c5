// Package logging builds the slog loggers shared by meico and meicod.
//
// Console output leads each line with the surface, a short request ID and
// the pipeline stage; JSON output keeps them as ordinary fields. WithContext
// lifts those values from a request context.
package logging
