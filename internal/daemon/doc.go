// Package daemon coordinates the long-running meicod process.
//
// It owns the single-instance flock in the scratch root, sweeps scratch
// areas left behind by a previous run, and keeps the deletion reaper running
// for as long as the service is up. The history ledger and the metrics
// collector are attached here so every request handler shares one instance.
//
// Request handling lives in internal/httpapi; the daemon only covers startup,
// shutdown, and status reporting.
package daemon
