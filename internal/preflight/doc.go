// Package preflight provides readiness checks for the filesystem paths and
// external tools meico depends on.
//
// These checks run in two contexts:
//   - The service calls CheckSystemDeps at startup and from /health so a
//     missing Java runtime or engine jar is reported before any conversion.
//   - The CLI "meico check" command renders RunAll and CheckSystemDeps as a
//     table for operators.
package preflight
