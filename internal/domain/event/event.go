// Package event defines the lifecycle events the core hands to the
// broadcast collaborator. The core has no knowledge of subscribers.
package event

// Event type constants for workflow and agent lifecycle broadcasts.
const (
	WorkflowStart    = "workflow_start"
	WorkflowUpdate   = "workflow_update"
	WorkflowComplete = "workflow_complete"
	AgentAssigned    = "agent_assigned"
	AgentThinking    = "agent_thinking"
	AgentResponse    = "agent_response"
)

// WorkflowEvent is broadcast on workflow lifecycle transitions.
type WorkflowEvent struct {
	WorkflowID string `json:"workflow_id"`
	Tier       string `json:"tier"`
	Topology   string `json:"topology"`
	Status     string `json:"status"`
	StepCount  int    `json:"step_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AgentEvent is broadcast on agent lifecycle transitions within a workflow.
type AgentEvent struct {
	WorkflowID string `json:"workflow_id"`
	AgentID    string `json:"agent_id"`
	Role       string `json:"role"`
	Stage      string `json:"stage,omitempty"`
	Model      string `json:"model,omitempty"`
	Output     string `json:"output,omitempty"`
}
