// Package auditlog defines the port for the append-only decision/audit sink.
package auditlog

import (
	"context"
	"time"
)

// Entry is one audit record: who decided what, and why.
type Entry struct {
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Decision  string         `json:"decision"`
	Reasoning string         `json:"reasoning,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	At        time.Time      `json:"at"`
}

// Sink accepts audit entries. Record is fire-and-forget: implementations
// must never block orchestration, and callers swallow errors.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Nop is a Sink that discards entries.
type Nop struct{}

// Record discards the entry.
func (Nop) Record(context.Context, Entry) error { return nil }
