package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"meico/internal/history"
)

type dependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status           string             `json:"status"`
	EngineReady      bool               `json:"engine_ready"`
	PendingDeletions int                `json:"pending_deletions"`
	Dependencies     []dependencyStatus `json:"dependencies"`
}

type runsResponse struct {
	Runs []history.Run `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	resp := healthResponse{
		Status:           "healthy",
		EngineReady:      true,
		PendingDeletions: status.PendingDeletions,
		Dependencies:     make([]dependencyStatus, 0, len(status.Dependencies)),
	}
	for _, dep := range status.Dependencies {
		if !dep.Available && !dep.Optional {
			resp.EngineReady = false
		}
		resp.Dependencies = append(resp.Dependencies, dependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := history.DefaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	store := s.daemon.History()
	if store == nil {
		s.writeJSON(w, http.StatusOK, runsResponse{Runs: []history.Run{}})
		return
	}
	runs, err := store.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	s.writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}
