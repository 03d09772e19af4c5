// Package pipeline sequences the conversion stages for one request.
//
// A Sequencer evaluates a fixed-order rule table of (stage, predicate, step)
// entries against an immutable request.Config. Each executed step drives the
// engine, and failures are classified into a single *StageError that names
// the stage. Engine panics are recovered at the same boundary. Observers
// receive one start and one completion (or failure) callback per executed
// stage, which the CLI turns into progress lines and the service turns into
// logs and metrics.
//
// Output locations are chosen by the caller through a Placement function, so
// the same sequencing serves files written beside a source document and files
// written into a request's scratch area.
package pipeline
