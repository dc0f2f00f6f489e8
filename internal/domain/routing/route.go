// Package routing defines routes, parallel batches, and the routing plan
// the coordinator executes.
package routing

import (
	"time"

	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/decomp"
)

// Route is one atomic unit of work inside a routing plan.
type Route struct {
	ID             string          `json:"id"`
	Strategy       decomp.Strategy `json:"strategy"`
	Unit           string          `json:"unit"` // layer/zone/phase/segment name
	Roles          []agent.Role    `json:"roles"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	CanParallelize bool            `json:"can_parallelize"`
	EstDuration    time.Duration   `json:"est_duration"`

	// Hybrid overlay, set when spatial/temporal attributes are folded onto
	// a functional route.
	Location string `json:"location,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Deferred bool   `json:"deferred,omitempty"`
}

// Batch is a set of routes proven mutually independent; members execute
// concurrently.
type Batch struct {
	ID       string   `json:"id"`
	RouteIDs []string `json:"route_ids"`
}

// Plan is the router's output: routes in dependency-respecting execution
// order plus the derived parallel batches.
type Plan struct {
	TaskID   string          `json:"task_id"`
	Strategy decomp.Strategy `json:"strategy"`
	Hybrid   bool            `json:"hybrid,omitempty"`
	Routes   []Route         `json:"routes"`
	Order    []string        `json:"order"`
	Batches  []Batch         `json:"batches,omitempty"`
}

// Route returns the route with the given id, or nil.
func (p *Plan) Route(id string) *Route {
	for i := range p.Routes {
		if p.Routes[i].ID == id {
			return &p.Routes[i]
		}
	}
	return nil
}

// Batched reports whether the route id appears in any batch.
func (p *Plan) Batched(id string) bool {
	for _, b := range p.Batches {
		for _, rid := range b.RouteIDs {
			if rid == id {
				return true
			}
		}
	}
	return false
}
