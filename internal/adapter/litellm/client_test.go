package litellm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voidukas/conductor/internal/adapter/litellm"
	"github.com/voidukas/conductor/internal/port/invoker"
	"github.com/voidukas/conductor/internal/resilience"
)

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", auth)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "openai/gpt-4o" {
			t.Fatalf("unexpected model: %v", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"looks good"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}
		}`))
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "test-key")
	res, err := client.Invoke(context.Background(), invoker.Request{
		AgentRole: "reviewer",
		Model:     "openai/gpt-4o",
		Prompt:    "review this diff",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Content != "looks good" {
		t.Fatalf("content = %q", res.Content)
	}
	if res.Usage.TotalTokens != 15 {
		t.Fatalf("total tokens = %d, want 15", res.Usage.TotalTokens)
	}
}

func TestInvokeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"provider unavailable"}`))
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "")
	if _, err := client.Invoke(context.Background(), invoker.Request{
		Model:  "openai/gpt-4o",
		Prompt: "anything",
	}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestInvokeBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "")
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := client.Invoke(context.Background(), invoker.Request{Model: "m", Prompt: "p"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	// Breaker is open now; the request must fail without reaching the server.
	if _, err := client.Invoke(context.Background(), invoker.Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected breaker-open error")
	}
}
