// Package history records completed conversion runs in SQLite.
//
// Each run stores the surface that accepted it, the outputs that were
// requested, the stages that executed, the failure classification if any,
// and a SHA-256 digest for every artifact produced. The service exposes the
// most recent runs through /api/runs.
//
// The database lives next to the logs and is treated as an append-only
// ledger. Schema changes bump schemaVersion; operators delete the file to
// adopt a new schema.
package history
