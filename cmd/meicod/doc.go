// Package main runs meicod, the HTTP conversion service.
//
// meicod loads the shared configuration (optionally seeded from a .env file),
// takes the scratch directory lock, and serves POST /meico alongside /health,
// /metrics, and /api/runs until it receives SIGINT or SIGTERM.
package main
