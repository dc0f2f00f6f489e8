package http

import (
	"errors"
	"net/http"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/tier"
	"github.com/voidukas/conductor/internal/service"
)

type initializeRequest struct {
	Tier     string `json:"tier"`
	Strategy string `json:"strategy,omitempty"`
}

// InitializePool handles POST /api/v1/pool/initialize.
func (h *Handlers) InitializePool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[initializeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Tier, "tier") {
		return
	}

	if err := h.Coordinator.Initialize(r.Context(), tier.Tier(req.Tier), decomp.Strategy(req.Strategy)); err != nil {
		if errors.Is(err, domain.ErrPoolBusy) {
			writeError(w, http.StatusConflict, "agent pool is busy")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.Coordinator.GetAgentPoolStatus()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetPoolStatus handles GET /api/v1/pool.
func (h *Handlers) GetPoolStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Coordinator.GetAgentPoolStatus()
	if err != nil {
		writeDomainError(w, err, "agent pool not initialized")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ExecuteTask handles POST /api/v1/workflows. The call blocks until the
// workflow reaches a terminal state and returns its result.
func (h *Handlers) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ExecuteRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Coordinator.ExecuteTask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListWorkflows handles GET /api/v1/workflows.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.ListWorkflows())
}

// GetWorkflow handles GET /api/v1/workflows/{id}.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	wf, err := h.Coordinator.GetWorkflowStatus(id)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// CancelWorkflow handles POST /api/v1/workflows/{id}/cancel.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	if err := h.Coordinator.CancelWorkflow(id); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetStatistics handles GET /api/v1/statistics.
func (h *Handlers) GetStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.GetStatistics())
}

type analyzeRequest struct {
	Task string `json:"task"`
}

// AnalyzeTask handles POST /api/v1/analyze. It returns the four candidate
// decompositions without executing anything.
func (h *Handlers) AnalyzeTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[analyzeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Task, "task") {
		return
	}

	writeJSON(w, http.StatusOK, h.Decomposer.Analyze(r.Context(), req.Task))
}

type routeRequest struct {
	Task     string `json:"task"`
	Tier     string `json:"tier"`
	Strategy string `json:"strategy,omitempty"`
	Hybrid   bool   `json:"hybrid,omitempty"`
}

// RouteTask handles POST /api/v1/route. It previews the routing plan a task
// would execute under, without claiming agents.
func (h *Handlers) RouteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[routeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Task, "task") {
		return
	}
	if req.Tier != "" && !tier.Valid(req.Tier) {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}
	if req.Strategy != "" && !decomp.ValidStrategy(req.Strategy) {
		writeError(w, http.StatusBadRequest, "unknown strategy")
		return
	}

	t := tier.Tier(req.Tier)
	if req.Tier == "" {
		t = tier.Free
	}

	plan := h.Router.Route(r.Context(), req.Task, service.RouteOptions{
		Tier:              t,
		PreferredStrategy: decomp.Strategy(req.Strategy),
		Hybrid:            req.Hybrid,
	})
	writeJSON(w, http.StatusOK, plan)
}
