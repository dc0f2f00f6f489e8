// Package workflow defines the Workflow domain entity: one execution of a
// user task under a topology.
package workflow

import (
	"time"

	"github.com/voidukas/conductor/internal/domain/routing"
	"github.com/voidukas/conductor/internal/domain/tier"
)

// Status represents the lifecycle state of a workflow.
// Transitions are one-way: running -> completed or running -> failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the workflow is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step records one executed unit of work inside a workflow.
type Step struct {
	Index    int           `json:"index"`
	AgentID  string        `json:"agent_id"`
	Role     string        `json:"role"`
	Stage    string        `json:"stage,omitempty"`    // pipeline/collaborative stage name
	RouteID  string        `json:"route_id,omitempty"` // set for decomposed execution
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
	Fallback bool          `json:"fallback"` // step succeeded only after the model swap
}

// StepError records a contained failure; the workflow fails only when the
// one-shot fallback is also exhausted.
type StepError struct {
	AgentID string    `json:"agent_id"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Workflow is one execution of a user task.
type Workflow struct {
	ID          string             `json:"id"`
	Task        string             `json:"task"`
	TaskType    tier.TaskType      `json:"task_type"`
	Tier        tier.Tier          `json:"tier"`
	Topology    tier.Topology      `json:"topology"`
	Status      Status             `json:"status"`
	AgentIDs    []string           `json:"agent_ids"`
	Steps       []Step             `json:"steps"`
	Errors      []StepError        `json:"errors,omitempty"`
	Plan        *routing.Plan      `json:"plan,omitempty"`
	FinalOutput string             `json:"final_output,omitempty"`
	Synthesis   map[string]any     `json:"synthesis,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitzero"`
}

// RecordStep appends a completed step.
func (w *Workflow) RecordStep(s Step) {
	s.Index = len(w.Steps)
	w.Steps = append(w.Steps, s)
}

// RecordError appends a contained step failure.
func (w *Workflow) RecordError(agentID, stage, msg string) {
	w.Errors = append(w.Errors, StepError{AgentID: agentID, Stage: stage, Message: msg, At: time.Now()})
}

// Finish moves the workflow to its terminal state. The last recorded step's
// output becomes the final output on success.
func (w *Workflow) Finish(failed bool) {
	w.FinishedAt = time.Now()
	if failed {
		w.Status = StatusFailed
		return
	}
	w.Status = StatusCompleted
	if n := len(w.Steps); n > 0 {
		w.FinalOutput = w.Steps[n-1].Output
	}
}

// Duration returns elapsed execution time, using now for running workflows.
func (w *Workflow) Duration() time.Duration {
	if w.FinishedAt.IsZero() {
		return time.Since(w.StartedAt)
	}
	return w.FinishedAt.Sub(w.StartedAt)
}

// Result is the caller-facing outcome of ExecuteTask. A well-formed call
// never produces an error return; failures surface here.
type Result struct {
	WorkflowID  string         `json:"workflow_id"`
	Success     bool           `json:"success"`
	FinalOutput string         `json:"final_output,omitempty"`
	Steps       []Step         `json:"steps"`
	Errors      []StepError    `json:"errors,omitempty"`
	Synthesis   map[string]any `json:"synthesis,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// ResultOf builds a Result snapshot from a terminal workflow.
func ResultOf(w *Workflow) *Result {
	return &Result{
		WorkflowID:  w.ID,
		Success:     w.Status == StatusCompleted,
		FinalOutput: w.FinalOutput,
		Steps:       w.Steps,
		Errors:      w.Errors,
		Synthesis:   w.Synthesis,
		Duration:    w.Duration(),
	}
}
