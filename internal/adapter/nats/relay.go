package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/voidukas/conductor/internal/domain/event"
	"github.com/voidukas/conductor/internal/port/messagequeue"
)

// Relay forwards lifecycle events onto the message queue so external
// consumers can follow orchestration without a socket connection. It
// implements the broadcast port; publish failures are logged and dropped,
// never surfaced to orchestration.
type Relay struct {
	queue messagequeue.Queue
}

// NewRelay creates a Relay over the queue.
func NewRelay(q messagequeue.Queue) *Relay {
	return &Relay{queue: q}
}

// BroadcastEvent publishes the event to its lifecycle subject.
func (r *Relay) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	subject := subjectFor(eventType)

	envelope := struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: eventType, Payload: payload}

	data, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("event marshal failed", "type", eventType, "error", err)
		return
	}
	if err := r.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("event relay failed", "subject", subject, "type", eventType, "error", err)
	}
}

func subjectFor(eventType string) string {
	switch eventType {
	case event.WorkflowStart:
		return messagequeue.SubjectWorkflowStarted
	case event.WorkflowComplete:
		return messagequeue.SubjectWorkflowFinished
	default:
		return messagequeue.SubjectAgentActivity
	}
}
