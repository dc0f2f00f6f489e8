// Package agent defines the Agent domain entity and the typed agent pool.
package agent

import (
	"fmt"
	"time"
)

// Role defines the specialization of an agent within the pool.
type Role string

const (
	RoleAnalyst    Role = "analyst"
	RoleResearcher Role = "researcher"
	RolePlanner    Role = "planner"
	RoleCoder      Role = "coder"
	RoleReviewer   Role = "reviewer"
	RoleOptimizer  Role = "optimizer"
	RoleTester     Role = "tester"
	RoleDocumenter Role = "documenter"
)

// ValidRole reports whether r is a known agent role.
func ValidRole(r string) bool {
	switch Role(r) {
	case RoleAnalyst, RoleResearcher, RolePlanner, RoleCoder,
		RoleReviewer, RoleOptimizer, RoleTester, RoleDocumenter:
		return true
	}
	return false
}

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
	StatusError Status = "error"
)

// ModelQuality selects between the primary and fallback model bound to a role.
type ModelQuality string

const (
	QualityPremium  ModelQuality = "premium"
	QualityStandard ModelQuality = "standard"
)

// Opposite returns the other quality tier, used by the one-shot step fallback.
func (q ModelQuality) Opposite() ModelQuality {
	if q == QualityPremium {
		return QualityStandard
	}
	return QualityPremium
}

// Agent is a logical worker bound to a role and a backing model.
// Only the coordinator mutates an agent after construction.
type Agent struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Status      Status       `json:"status"`
	Model       string       `json:"model"`
	Quality     ModelQuality `json:"quality"`
	CurrentTask string       `json:"current_task,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// New creates an idle agent named role-index, the pool slot convention.
func New(role Role, index int, model string, quality ModelQuality) *Agent {
	return &Agent{
		ID:        fmt.Sprintf("%s-%d", role, index),
		Role:      role,
		Status:    StatusIdle,
		Model:     model,
		Quality:   quality,
		CreatedAt: time.Now(),
	}
}

// Assign marks the agent busy on the given task.
// Returns false if the agent is already busy (no double assignment).
func (a *Agent) Assign(taskID string) bool {
	if a.Status == StatusBusy {
		return false
	}
	a.Status = StatusBusy
	a.CurrentTask = taskID
	return true
}

// Release returns the agent to idle, or to error if failed is true.
func (a *Agent) Release(failed bool) {
	a.CurrentTask = ""
	if failed {
		a.Status = StatusError
		return
	}
	a.Status = StatusIdle
}
