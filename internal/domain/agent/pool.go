package agent

import "sync"

// Pool holds the tier-sized set of agents and centralizes role-based lookup.
// All assignment policy goes through the pool so concurrent batch execution
// cannot double-assign an agent.
type Pool struct {
	mu     sync.Mutex
	agents []*Agent
}

// NewPool creates a pool over the given agents.
func NewPool(agents []*Agent) *Pool {
	return &Pool{agents: agents}
}

// Size returns the number of agents in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

// Get returns the agent with the given id, or nil.
func (p *Pool) Get(id string) *Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// AssignIdleByRole atomically finds an idle agent with the given role and
// marks it busy on taskID. Returns nil when no idle agent matches.
func (p *Pool) AssignIdleByRole(role Role, taskID string) *Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.agents {
		if a.Role == role && a.Status == StatusIdle && a.Assign(taskID) {
			return a
		}
	}
	return nil
}

// Release returns the agent with the given id to idle (or error).
func (p *Pool) Release(id string, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.agents {
		if a.ID == id {
			a.Release(failed)
			return
		}
	}
}

// SwapModel rebinds the agent's model, used by the one-shot quality fallback.
func (p *Pool) SwapModel(id, model string, quality ModelQuality) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.agents {
		if a.ID == id {
			a.Model = model
			a.Quality = quality
			return
		}
	}
}

// Snapshot returns a copy of all agents for status reporting.
func (p *Pool) Snapshot() []Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, *a)
	}
	return out
}

// IDs returns all agent ids in slot order.
func (p *Pool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.agents))
	for _, a := range p.agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// CountByStatus returns the number of agents per status.
func (p *Pool) CountByStatus() map[Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[Status]int, 3)
	for _, a := range p.agents {
		counts[a.Status]++
	}
	return counts
}
