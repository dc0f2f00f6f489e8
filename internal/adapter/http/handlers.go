package http

import (
	"context"
	"net/http"

	"github.com/voidukas/conductor/internal/adapter/ws"
	"github.com/voidukas/conductor/internal/service"
)

// HealthChecker reports liveness of an upstream dependency.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	Coordinator *service.CoordinatorService
	Protocol    *service.ProtocolService
	Resources   *service.ResourceService
	Decomposer  *service.DecomposerService
	Router      *service.RouterService
	Hub         *ws.Hub
	LLM         HealthChecker
}

// NewHandlers creates the handler set.
func NewHandlers(
	coordinator *service.CoordinatorService,
	protocol *service.ProtocolService,
	resources *service.ResourceService,
	decomposer *service.DecomposerService,
	router *service.RouterService,
	hub *ws.Hub,
	llm HealthChecker,
) *Handlers {
	return &Handlers{
		Coordinator: coordinator,
		Protocol:    protocol,
		Resources:   resources,
		Decomposer:  decomposer,
		Router:      router,
		Hub:         hub,
		LLM:         llm,
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready. It checks the model proxy when one
// is configured.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"core": "ok"}

	if h.LLM != nil {
		if ok, _ := h.LLM.Health(r.Context()); !ok {
			checks["llm"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, checks)
			return
		}
		checks["llm"] = "ok"
	}

	if h.Hub != nil {
		checks["websocket_connections"] = "tracked"
	}

	writeJSON(w, http.StatusOK, checks)
}
