// Package tier defines the subscription tiers that fix pool size and topology.
package tier

import "github.com/voidukas/conductor/internal/domain/agent"

// Tier is a concurrency class: it fixes the agent pool size and the default
// execution topology.
type Tier string

const (
	Free       Tier = "free"       // 2 agents, sequential
	Pro        Tier = "pro"        // 4 agents, pipeline
	Team       Tier = "team"       // 6 agents, collaborative
	Enterprise Tier = "enterprise" // 10 agents, collaborative
)

// Valid reports whether t is a known tier.
func Valid(t string) bool {
	switch Tier(t) {
	case Free, Pro, Team, Enterprise:
		return true
	}
	return false
}

// Topology is the fixed execution shape dispatched when no routing plan
// produced parallel batches.
type Topology string

const (
	TopologySequential    Topology = "sequential"
	TopologyPipeline      Topology = "pipeline"
	TopologyCollaborative Topology = "collaborative"
)

// MaxAgents returns the worker budget for the tier.
func (t Tier) MaxAgents() int {
	switch t {
	case Pro:
		return 4
	case Team:
		return 6
	case Enterprise:
		return 10
	default:
		return 2
	}
}

// Topology returns the default execution topology for the tier.
func (t Tier) Topology() Topology {
	switch t {
	case Pro:
		return TopologyPipeline
	case Team, Enterprise:
		return TopologyCollaborative
	default:
		return TopologySequential
	}
}

// RoleSlots returns the ordered role slots used to build the agent pool.
// Slot order is also the sequential execution order for the free tier.
func (t Tier) RoleSlots() []agent.Role {
	switch t {
	case Pro:
		return []agent.Role{agent.RoleResearcher, agent.RolePlanner, agent.RoleCoder, agent.RoleReviewer}
	case Team:
		return []agent.Role{
			agent.RoleAnalyst, agent.RoleResearcher, agent.RolePlanner,
			agent.RoleCoder, agent.RoleReviewer, agent.RoleOptimizer,
		}
	case Enterprise:
		return []agent.Role{
			agent.RoleAnalyst, agent.RoleResearcher, agent.RolePlanner,
			agent.RoleCoder, agent.RoleCoder, agent.RoleCoder,
			agent.RoleReviewer, agent.RoleOptimizer, agent.RoleTester, agent.RoleDocumenter,
		}
	default:
		return []agent.Role{agent.RoleAnalyst, agent.RoleCoder}
	}
}

// TaskType classifies the user task for capability-based assignment.
type TaskType string

const (
	TaskAnalysis      TaskType = "analysis"
	TaskCoding        TaskType = "coding"
	TaskResearch      TaskType = "research"
	TaskReview        TaskType = "review"
	TaskOptimization  TaskType = "optimization"
	TaskDocumentation TaskType = "documentation"
	TaskGeneral       TaskType = "general"
)

// CapableRoles returns the roles this tier assigns to a task type when no
// routing plan is available. Roles absent from the tier's slots are skipped
// by the caller; the tier default is every slot role.
func (t Tier) CapableRoles(tt TaskType) []agent.Role {
	switch tt {
	case TaskAnalysis:
		return []agent.Role{agent.RoleAnalyst, agent.RoleCoder}
	case TaskCoding:
		return []agent.Role{agent.RolePlanner, agent.RoleCoder, agent.RoleReviewer}
	case TaskResearch:
		return []agent.Role{agent.RoleResearcher, agent.RoleAnalyst}
	case TaskReview:
		return []agent.Role{agent.RoleReviewer, agent.RoleCoder}
	case TaskOptimization:
		return []agent.Role{agent.RoleOptimizer, agent.RoleCoder}
	case TaskDocumentation:
		return []agent.Role{agent.RoleDocumenter, agent.RoleAnalyst}
	default:
		return t.RoleSlots()
	}
}

// ModelBinding is the primary/fallback model pair for a role.
type ModelBinding struct {
	Primary  string
	Fallback string
}

// models maps quality-sensitive roles to their bindings. Roles not listed
// use the generalist binding.
var models = map[agent.Role]ModelBinding{
	agent.RoleAnalyst:  {Primary: "openai/gpt-4o", Fallback: "openai/gpt-4o-mini"},
	agent.RolePlanner:  {Primary: "openai/gpt-4o", Fallback: "openai/gpt-4o-mini"},
	agent.RoleCoder:    {Primary: "anthropic/claude-sonnet", Fallback: "openai/gpt-4o-mini"},
	agent.RoleReviewer: {Primary: "anthropic/claude-sonnet", Fallback: "openai/gpt-4o-mini"},
}

var generalist = ModelBinding{Primary: "openai/gpt-4o-mini", Fallback: "openai/gpt-4o"}

// ModelFor returns the model binding for a role.
func ModelFor(r agent.Role) ModelBinding {
	if b, ok := models[r]; ok {
		return b
	}
	return generalist
}

// ModelForQuality resolves a binding to a concrete model name.
func ModelForQuality(r agent.Role, q agent.ModelQuality) string {
	b := ModelFor(r)
	if q == agent.QualityStandard {
		return b.Fallback
	}
	return b.Primary
}
