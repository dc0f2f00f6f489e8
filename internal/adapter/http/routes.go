package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.HealthReady)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agent pool
		r.Post("/pool/initialize", h.InitializePool)
		r.Get("/pool", h.GetPoolStatus)

		// Workflows
		r.Post("/workflows", h.ExecuteTask)
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/cancel", h.CancelWorkflow)
		r.Get("/statistics", h.GetStatistics)

		// Decomposition and routing previews
		r.Post("/analyze", h.AnalyzeTask)
		r.Post("/route", h.RouteTask)

		// Inter-agent messaging
		r.Post("/messages", h.SendMessage)
		r.Get("/agents/{id}/messages", h.GetMessages)
		r.Post("/agents/{id}/messages/{msgId}/read", h.MarkMessageRead)
		r.Post("/handoffs", h.HandoffTask)

		// Resource locks
		r.Post("/locks", h.RequestLock)
		r.Post("/locks/release", h.ReleaseLock)

		// Quorum decisions
		r.Post("/decisions", h.RequestDecision)
		r.Get("/decisions/{id}", h.GetDecision)
		r.Post("/decisions/{id}/votes", h.SubmitVote)

		// Capacity pools
		r.Get("/resources", h.GetResourceStatus)
		r.Get("/agents/{id}/quota", h.GetAgentQuota)
		r.Post("/files", h.RequestFileAccess)
		r.Post("/files/release", h.ReleaseFileAccess)
	})
}
