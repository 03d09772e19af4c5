package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"meico/internal/services"
)

// Requirement defines an external dependency meico relies on. Command is
// resolved on PATH; File must exist as a regular file.
type Requirement struct {
	Name        string
	Command     string
	File        string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		if strings.TrimSpace(req.File) != "" {
			results = append(results, checkFile(req))
			continue
		}
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func checkFile(req Requirement) Status {
	path := strings.TrimSpace(req.File)
	status := Status{
		Name:        req.Name,
		Command:     path,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("file %q not found", path)
	case !info.Mode().IsRegular():
		status.Detail = fmt.Sprintf("%q is not a regular file", path)
	default:
		status.Available = true
	}
	return status
}

// Missing returns a missing-dependency error naming every unavailable
// required entry, or nil when all required dependencies are present.
func Missing(statuses []Status) error {
	var missing []string
	for _, s := range statuses {
		if s.Available || s.Optional {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s (%s)", s.Name, s.Detail))
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrMissingDependency, "", "dependency check",
		"unavailable: "+strings.Join(missing, ", "), nil)
}
