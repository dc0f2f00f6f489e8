// Package comms defines the message and decision entities exchanged through
// the communication protocol.
package comms

import "time"

// MessageType identifies the kind of inter-agent message.
type MessageType string

const (
	MessageHandoff         MessageType = "handoff"
	MessageQuery           MessageType = "query"
	MessageResponse        MessageType = "response"
	MessageDecisionRequest MessageType = "decision_request"
	MessageResourceDenied  MessageType = "resource_denied"
	MessageBroadcast       MessageType = "broadcast"
)

// Priority orders delivery within a recipient queue. High-priority messages
// are placed at the front; everything else is FIFO.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// SystemSender is the From value for protocol-originated messages.
const SystemSender = "system"

// Message is a directed, typed envelope between agents (or system to agent).
// Messages persist in the recipient queue until marked read or cleared, so
// reads are replayable.
type Message struct {
	ID               string         `json:"id"`
	From             string         `json:"from"`
	To               string         `json:"to"`
	Type             MessageType    `json:"type"`
	Payload          map[string]any `json:"payload,omitempty"`
	Priority         Priority       `json:"priority"`
	RequiresResponse bool           `json:"requires_response"`
	Read             bool           `json:"read"`
	SentAt           time.Time      `json:"sent_at"`
}

// Filter selects messages on receive; zero values match everything.
type Filter struct {
	Type       MessageType
	From       string
	UnreadOnly bool
}

// Matches reports whether the message passes the filter.
func (f Filter) Matches(m *Message) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.From != "" && m.From != f.From {
		return false
	}
	if f.UnreadOnly && m.Read {
		return false
	}
	return true
}
