package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	conhttp "github.com/voidukas/conductor/internal/adapter/http"
	"github.com/voidukas/conductor/internal/adapter/ws"
	"github.com/voidukas/conductor/internal/config"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/port/invoker"
	"github.com/voidukas/conductor/internal/service"
)

// stubInvoker returns canned output for every model call.
type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, req invoker.Request) (*invoker.Result, error) {
	return &invoker.Result{
		Content: "output from " + req.AgentRole,
		Usage:   invoker.Usage{PromptTokens: 50, CompletionTokens: 50, TotalTokens: 100},
	}, nil
}

func newTestServer(t *testing.T) (http.Handler, *service.ProtocolService) {
	t.Helper()

	resources := service.NewResourceService(config.Resources{
		ContextTokens:   500_000,
		APIQuotaTotal:   1_000,
		APIQuotaPerSlot: 100,
		MaxOpenFiles:    50,
	})
	protocol := service.NewProtocolService(5*time.Minute, nil)
	decomposer := service.NewDecomposerService(nil, 0)
	router := service.NewRouterService(decomposer)

	coord := service.NewCoordinatorService(config.Orchestrator{
		StepTimeout:     5 * time.Second,
		MaxBatchWorkers: 4,
		MaxWorkflows:    16,
	}, service.CoordinatorDeps{
		Protocol:  protocol,
		Resources: resources,
		Router:    router,
		Invoker:   stubInvoker{},
	})

	h := conhttp.NewHandlers(coord, protocol, resources, decomposer, router, ws.NewHub(), nil)

	r := chi.NewRouter()
	conhttp.MountRoutes(r, h)
	return r, protocol
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestInitializePool(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/pool/initialize", map[string]string{"tier": "free"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	status := decodeBody[map[string]any](t, rec)
	agents, _ := status["agents"].([]any)
	if len(agents) != 2 {
		t.Errorf("agents = %d, want 2 for free tier", len(agents))
	}
}

func TestInitializePoolUnknownTier(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/pool/initialize", map[string]string{"tier": "platinum"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExecuteBeforeInitialize(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/workflows", map[string]any{"task": "do something"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestExecuteTask(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/pool/initialize", map[string]string{"tier": "free"})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/workflows", map[string]any{
		"task": "review this code for style issues",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	result := decodeBody[map[string]any](t, rec)
	if success, _ := result["success"].(bool); !success {
		t.Errorf("success = false, body = %s", rec.Body.String())
	}
	workflowID, _ := result["workflow_id"].(string)
	if workflowID == "" {
		t.Fatal("missing workflow_id in result")
	}

	// The finished workflow is retrievable by id.
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/workflows/"+workflowID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get workflow status = %d", rec.Code)
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/workflows/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAnalyzePreview(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/analyze", map[string]string{
		"task": "build the backend api and write tests",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	analysis := decodeBody[map[string]any](t, rec)
	if analysis["task_id"] == "" {
		t.Error("missing task_id in analysis")
	}
}

func TestMessagingRoundTrip(t *testing.T) {
	srv, protocol := newTestServer(t)

	protocol.RegisterAgent("analyst-0")
	protocol.RegisterAgent("coder-0")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/messages", map[string]any{
		"from":    "analyst-0",
		"to":      "coder-0",
		"type":    string(comms.MessageQuery),
		"payload": map[string]any{"question": "which branch?"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/agents/coder-0/messages?unread=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receive status = %d", rec.Code)
	}
	msgs := decodeBody[[]map[string]any](t, rec)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0]["from"] != "analyst-0" {
		t.Errorf("from = %v, want analyst-0", msgs[0]["from"])
	}
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/messages", map[string]any{
		"from": "analyst-0",
		"to":   "ghost-9",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLockContention(t *testing.T) {
	srv, protocol := newTestServer(t)

	protocol.RegisterAgent("coder-0")
	protocol.RegisterAgent("coder-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/locks", map[string]any{
		"agent_id":    "coder-0",
		"type":        "file",
		"resource_id": "src/main.go",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("first lock status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/locks", map[string]any{
		"agent_id":    "coder-1",
		"type":        "file",
		"resource_id": "src/main.go",
	})
	if rec.Code != http.StatusLocked {
		t.Fatalf("second lock status = %d, want 423", rec.Code)
	}
	grant := decodeBody[map[string]any](t, rec)
	if grant["locked_by"] != "coder-0" {
		t.Errorf("locked_by = %v, want coder-0", grant["locked_by"])
	}
	if queued, _ := grant["queued"].(bool); !queued {
		t.Error("denied requester should be queued as a waiter")
	}
}

func TestDecisionLifecycle(t *testing.T) {
	srv, protocol := newTestServer(t)

	for _, id := range []string{"analyst-0", "coder-0", "reviewer-0"} {
		protocol.RegisterAgent(id)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/decisions", map[string]any{
		"requester_id":   "analyst-0",
		"subject":        "merge feature branch",
		"voters":         []string{"coder-0", "reviewer-0"},
		"required_votes": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	d := decodeBody[map[string]any](t, rec)
	id, _ := d["id"].(string)
	if id == "" {
		t.Fatal("missing decision id")
	}

	doJSON(t, srv, http.MethodPost, "/api/v1/decisions/"+id+"/votes", map[string]string{
		"voter_id": "coder-0", "vote": "approve",
	})
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/decisions/"+id+"/votes", map[string]string{
		"voter_id": "reviewer-0", "vote": "approve",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d, body = %s", rec.Code, rec.Body.String())
	}
	d = decodeBody[map[string]any](t, rec)
	if d["status"] != "approved" {
		t.Errorf("status = %v, want approved", d["status"])
	}

	// A vote after resolution is rejected.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/decisions/"+id+"/votes", map[string]string{
		"voter_id": "coder-0", "vote": "deny",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("late vote status = %d, want 409", rec.Code)
	}
}

func TestResourceStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/resources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	status := decodeBody[map[string]any](t, rec)
	for _, key := range []string{"context", "quota", "files"} {
		if _, ok := status[key]; !ok {
			t.Errorf("missing %q in resource status", key)
		}
	}
}

func TestFileAccessExclusiveWrite(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/files", map[string]string{
		"agent_id": "coder-0", "path": "go.sum", "mode": "write",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("first write status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/files", map[string]string{
		"agent_id": "coder-1", "path": "go.sum", "mode": "read",
	})
	if rec.Code != http.StatusLocked {
		t.Fatalf("contended read status = %d, want 423", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	guarded := conhttp.APIKeyAuth(string(hash))(srv)

	// Health stays public.
	rec := doJSON(t, guarded, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, guarded, http.MethodGet, "/api/v1/statistics", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil)
	req.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid key status = %d, want 200", w.Code)
	}
}
