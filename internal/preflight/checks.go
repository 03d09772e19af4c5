package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"meico/internal/config"
	"meico/internal/deps"
	"meico/internal/engine/bridge"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least minBytes free.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s (%d MiB free)", path, free>>20)
	if free < minBytes {
		return Result{Name: name, Detail: detail + fmt.Sprintf(", need %d MiB", minBytes>>20)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSoundbank verifies that a configured soundbank file is readable.
// Requests naming a broken soundbank still render with the built-in one.
func CheckSoundbank(name, path string) Result {
	label := "Soundbank " + name
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (missing, built-in soundbank will be used)", path)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: label, Detail: fmt.Sprintf("%s (not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (not readable: %v)", path, err)}
	}
	return Result{Name: label, Passed: true, Detail: path}
}

// CheckSystemDeps evaluates the engine dependencies for the given config.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(bridge.Requirements(cfg.Engine))
}
