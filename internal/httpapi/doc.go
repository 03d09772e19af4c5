// Package httpapi serves the meico conversion service.
//
// POST /meico accepts a multipart upload in field "mei" plus the conversion
// options as query or form fields, runs the pipeline inside a fresh scratch
// area, and streams back the requested artifact. The area is released on
// every path before the handler returns; deletion failures are retried by
// the daemon's reaper and never reach the client.
//
// GET /health, GET /metrics, and GET /api/runs expose service state.
// Failures are reported as {"errors": "<message>"} with a status derived
// from the error classification in internal/services.
package httpapi
