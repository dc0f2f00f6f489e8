package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voidukas/conductor/internal/domain/event"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForConnections(t, hub, 1)

	hub.BroadcastEvent(ctx, event.WorkflowStart, event.WorkflowEvent{
		WorkflowID: "wf-1",
		Tier:       "pro",
		Topology:   "pipeline",
		Status:     "running",
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if msg.Type != event.WorkflowStart {
		t.Errorf("type = %q, want %q", msg.Type, event.WorkflowStart)
	}

	var payload event.WorkflowEvent
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.WorkflowID != "wf-1" {
		t.Errorf("workflow_id = %q, want wf-1", payload.WorkflowID)
	}

	// Step-progress updates ride the same envelope.
	hub.BroadcastEvent(ctx, event.WorkflowUpdate, event.WorkflowEvent{
		WorkflowID: "wf-1",
		Status:     "running",
		StepCount:  2,
	})

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal update envelope: %v", err)
	}
	if msg.Type != event.WorkflowUpdate {
		t.Errorf("type = %q, want %q", msg.Type, event.WorkflowUpdate)
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal update payload: %v", err)
	}
	if payload.StepCount != 2 {
		t.Errorf("step count = %d, want 2", payload.StepCount)
	}
}

func TestHubConnectionCount(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	if got := hub.ConnectionCount(); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForConnections(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "")

	waitForConnections(t, hub, 0)
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection count = %d, want %d", hub.ConnectionCount(), want)
}
