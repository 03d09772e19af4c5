// Package engine defines the narrow contract the conversion pipeline uses to
// drive the meico engine.
//
// The engine owns every format-specific algorithm: notation loading and
// validation, sequence resolution, event synthesis, and audio rendering.
// This package only names the objects handed back and forth (Document,
// Movement, EventStream, Audio) so the pipeline can be exercised against the
// in-memory fake in enginetest and run in production through the bridge
// subprocess adapter.
package engine
