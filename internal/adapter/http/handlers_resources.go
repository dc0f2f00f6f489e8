package http

import (
	"net/http"
	"time"

	"github.com/voidukas/conductor/internal/domain/resource"
)

// GetResourceStatus handles GET /api/v1/resources.
func (h *Handlers) GetResourceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Resources.Status())
}

type quotaResponse struct {
	AgentID   string    `json:"agent_id"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// GetAgentQuota handles GET /api/v1/agents/{id}/quota.
func (h *Handlers) GetAgentQuota(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "id")

	remaining, resetAt := h.Resources.CheckAPIQuota(agentID)
	writeJSON(w, http.StatusOK, quotaResponse{
		AgentID:   agentID,
		Remaining: remaining,
		ResetAt:   resetAt,
	})
}

type fileAccessRequest struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path"`
	Mode    string `json:"mode"` // read | write
}

// RequestFileAccess handles POST /api/v1/files.
func (h *Handlers) RequestFileAccess(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fileAccessRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AgentID, "agent_id") || !requireField(w, req.Path, "path") {
		return
	}

	mode := resource.FileMode(req.Mode)
	if mode != resource.ModeRead && mode != resource.ModeWrite {
		writeError(w, http.StatusBadRequest, "mode must be read or write")
		return
	}

	grant := h.Resources.RequestFileAccess(req.AgentID, req.Path, mode)

	status := http.StatusOK
	if !grant.Granted {
		status = http.StatusLocked
	}
	writeJSON(w, status, grant)
}

// ReleaseFileAccess handles POST /api/v1/files/release.
func (h *Handlers) ReleaseFileAccess(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fileAccessRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AgentID, "agent_id") || !requireField(w, req.Path, "path") {
		return
	}

	h.Resources.ReleaseFileAccess(req.AgentID, req.Path)
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
