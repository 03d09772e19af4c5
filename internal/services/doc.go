// Package services defines shared utilities consumed by the conversion
// pipeline and both surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp stage names, the calling surface, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (missing dependency, invalid input, empty result, ...) and map them to
//     CLI exit codes and HTTP statuses.
//
// Use these helpers when wiring new stage logic so failures stay typed from
// the engine boundary all the way to the surface response.
package services
