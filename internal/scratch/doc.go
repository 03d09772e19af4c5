// Package scratch owns the per-request working directories used during a
// conversion.
//
// Acquire hands out an exclusively owned req-<uuid> directory under the
// scratch root. Release deletes it immediately when it can; when deletion
// fails (an engine process still holds a file, a slow filesystem) the path is
// queued and a single reaper goroutine retries the whole queue at a fixed
// interval until it empties, then goes idle until the next failure. Deletion
// problems are logged, never returned. SweepStale removes leftovers from
// crashed runs at service start.
package scratch
