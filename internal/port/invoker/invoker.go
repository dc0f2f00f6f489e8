// Package invoker defines the port for the external model-calling collaborator.
package invoker

import "context"

// Request is one unit of agent work delegated to a backing model.
type Request struct {
	AgentRole string         `json:"agent_role"`
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Context   map[string]any `json:"context,omitempty"`
}

// Usage reports token consumption for a single invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the model's response.
type Result struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Invoker executes one model call. Any error — transport, provider, or
// deadline — is a step failure eligible for the coordinator's one-shot
// fallback.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}
