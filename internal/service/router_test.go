package service

import (
	"context"
	"testing"

	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/routing"
	"github.com/voidukas/conductor/internal/domain/tier"
)

func newTestRouter() *RouterService {
	return NewRouterService(NewDecomposerService(nil, 0))
}

func TestRoutePreferredStrategy(t *testing.T) {
	r := newTestRouter()

	plan := r.Route(context.Background(), "stream log events into metrics", RouteOptions{
		Tier:              tier.Pro,
		PreferredStrategy: decomp.StrategyTemporal,
	})
	if plan.Strategy != decomp.StrategyTemporal {
		t.Errorf("strategy = %s, want temporal", plan.Strategy)
	}
	for _, route := range plan.Routes {
		if route.Strategy != decomp.StrategyTemporal {
			t.Errorf("route %s has strategy %s", route.ID, route.Strategy)
		}
	}
}

func TestRouteSelectsDominantStrategy(t *testing.T) {
	r := newTestRouter()

	// Heavy data vocabulary: logs, events, metrics, memory all match while
	// functional sees only a couple of layers.
	plan := r.Route(context.Background(), "stream log events from the queue into metrics and session memory", RouteOptions{
		Tier: tier.Team,
	})
	if plan.Strategy != decomp.StrategyData {
		t.Errorf("strategy = %s, want data", plan.Strategy)
	}
}

func TestRouteDependencyClosureAndOrder(t *testing.T) {
	r := newTestRouter()

	plan := r.Route(context.Background(), "build a rest api endpoint over the database with ui components and tests", RouteOptions{
		Tier: tier.Enterprise,
	})

	if err := routing.ValidateClosure(plan.Routes); err != nil {
		t.Fatalf("dependency closure: %v", err)
	}

	pos := make(map[string]int, len(plan.Order))
	for i, id := range plan.Order {
		pos[id] = i
	}
	if len(pos) != len(plan.Routes) {
		t.Fatalf("order has %d entries for %d routes", len(pos), len(plan.Routes))
	}
	for _, route := range plan.Routes {
		for _, dep := range route.DependsOn {
			if pos[dep] > pos[route.ID] {
				t.Errorf("route %s precedes its dependency %s", route.ID, dep)
			}
		}
	}
}

func TestRouteRoleCapByTier(t *testing.T) {
	r := newTestRouter()

	plan := r.Route(context.Background(), "implement the backend service", RouteOptions{Tier: tier.Free})
	for _, route := range plan.Routes {
		if len(route.Roles) > tier.Free.MaxAgents() {
			t.Errorf("route %s has %d roles, tier cap is %d", route.ID, len(route.Roles), tier.Free.MaxAgents())
		}
		if len(route.Roles) == 0 {
			t.Errorf("route %s has no eligible roles", route.ID)
		}
	}
}

func TestParallelBatchMembership(t *testing.T) {
	r := newTestRouter()

	plan := r.Route(context.Background(), "provision infrastructure and migrate the database schema", RouteOptions{
		Tier: tier.Team,
	})

	seen := make(map[string]string)
	for _, b := range plan.Batches {
		if len(b.RouteIDs) < 2 {
			t.Errorf("batch %s has fewer than 2 routes", b.ID)
		}
		for _, id := range b.RouteIDs {
			if prev, dup := seen[id]; dup {
				t.Errorf("route %s appears in batches %s and %s", id, prev, b.ID)
			}
			seen[id] = b.ID
			route := plan.Route(id)
			if route == nil {
				t.Fatalf("batch %s references unknown route %s", b.ID, id)
			}
			if len(route.DependsOn) > 0 {
				t.Errorf("batched route %s has dependencies %v", id, route.DependsOn)
			}
		}
	}
}

func TestHybridOverlay(t *testing.T) {
	r := newTestRouter()

	plan := r.Route(context.Background(), "build the backend api over the database layer", RouteOptions{
		Tier:              tier.Pro,
		PreferredStrategy: decomp.StrategyFunctional,
		Hybrid:            true,
	})
	if !plan.Hybrid {
		t.Fatal("plan not marked hybrid")
	}

	overlaid := false
	for _, route := range plan.Routes {
		if route.Location != "" {
			overlaid = true
		}
	}
	if !overlaid {
		t.Error("no route carries a spatial overlay")
	}
}

func TestRoutingNeverFails(t *testing.T) {
	r := newTestRouter()

	// Even a task matching nothing yields a usable single-route plan.
	plan := r.Route(context.Background(), "", RouteOptions{Tier: tier.Free})
	if len(plan.Routes) == 0 {
		t.Fatal("empty plan for empty task")
	}
	if len(plan.Order) != len(plan.Routes) {
		t.Fatalf("order length %d != route count %d", len(plan.Order), len(plan.Routes))
	}
}
