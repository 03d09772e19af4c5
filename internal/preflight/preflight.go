package preflight

import (
	"context"

	"meico/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minScratchFreeBytes is the free space below which the scratch check fails.
// Rendered Wave files for a long score run to a few hundred MiB.
const minScratchFreeBytes = 512 << 20

// RunAll executes the filesystem checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckFreeSpace("Scratch free space", cfg.Paths.ScratchDir, minScratchFreeBytes),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	for _, name := range cfg.SoundbankNames() {
		path, _ := cfg.SoundbankPath(name)
		results = append(results, CheckSoundbank(name, path))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
