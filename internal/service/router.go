package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/routing"
	"github.com/voidukas/conductor/internal/domain/tier"
)

// RouterService turns a decomposition analysis into a concrete routing
// plan: one route per decomposition unit, a dependency-respecting execution
// order, and parallel batches. Routing never fails — it always produces a
// best-effort plan.
type RouterService struct {
	decomposer *DecomposerService
}

// NewRouterService creates a RouterService on top of the decomposer.
func NewRouterService(d *DecomposerService) *RouterService {
	return &RouterService{decomposer: d}
}

// AnalysisCacheStats reports the underlying decomposer's cache counters.
func (s *RouterService) AnalysisCacheStats() (hits, misses int64) {
	return s.decomposer.CacheStats()
}

// RouteOptions tunes plan construction.
type RouteOptions struct {
	Tier              tier.Tier
	PreferredStrategy decomp.Strategy // empty selects the dominant strategy
	Hybrid            bool
}

// Route analyzes the task and builds a routing plan for it.
func (s *RouterService) Route(ctx context.Context, task string, opts RouteOptions) *routing.Plan {
	analysis := s.decomposer.Analyze(ctx, task)
	return s.Plan(analysis, opts)
}

// Plan builds a routing plan from an existing analysis.
func (s *RouterService) Plan(analysis *decomp.Analysis, opts RouteOptions) *routing.Plan {
	strategy := opts.PreferredStrategy
	if strategy == "" {
		strategy = analysis.DominantStrategy()
	}

	maxAgents := opts.Tier.MaxAgents()
	var routes []routing.Route
	switch strategy {
	case decomp.StrategyFunctional:
		routes = functionalRoutes(analysis, maxAgents)
	case decomp.StrategySpatial:
		routes = spatialRoutes(analysis, maxAgents)
	case decomp.StrategyTemporal:
		routes = temporalRoutes(analysis, maxAgents)
	case decomp.StrategyData:
		routes = dataRoutes(analysis, maxAgents)
	default:
		slog.Warn("unknown routing strategy, falling back to functional", "strategy", strategy)
		strategy = decomp.StrategyFunctional
		routes = functionalRoutes(analysis, maxAgents)
	}

	if opts.Hybrid && strategy == decomp.StrategyFunctional {
		overlayHybrid(routes, analysis)
	}

	order, err := routing.ExecutionOrder(routes)
	if err != nil {
		// Static dependency tables should never cycle; degrade to the
		// routes' natural order rather than failing the plan.
		slog.Warn("execution order fallback", "error", err)
		order = make([]string, len(routes))
		for i := range routes {
			order[i] = routes[i].ID
		}
	}

	plan := &routing.Plan{
		TaskID:   analysis.TaskID,
		Strategy: strategy,
		Hybrid:   opts.Hybrid,
		Routes:   routes,
		Order:    order,
	}
	plan.Batches = parallelBatches(plan)
	return plan
}

// Fixed per-strategy role tables. Unknown units fall back to the
// generalist pair.

var functionalRoleTable = map[string][]agent.Role{
	"ui":             {agent.RoleAnalyst, agent.RoleCoder},
	"backend":        {agent.RoleCoder, agent.RoleReviewer},
	"database":       {agent.RoleCoder, agent.RoleAnalyst},
	"api":            {agent.RoleCoder, agent.RoleReviewer},
	"infrastructure": {agent.RolePlanner, agent.RoleCoder},
	"testing":        {agent.RoleTester, agent.RoleReviewer},
	"documentation":  {agent.RoleDocumenter, agent.RoleReviewer},
}

var spatialRoleTable = map[string][]agent.Role{
	"frontend":         {agent.RoleCoder, agent.RoleAnalyst},
	"backend-api":      {agent.RoleCoder, agent.RoleReviewer},
	"backend-services": {agent.RoleCoder, agent.RolePlanner},
	"database-layer":   {agent.RoleCoder, agent.RoleAnalyst},
	"external-apis":    {agent.RoleResearcher, agent.RoleCoder},
	"file-system":      {agent.RoleCoder},
	"cache-layer":      {agent.RoleOptimizer, agent.RoleCoder},
}

var temporalRoleTable = map[string][]agent.Role{
	"immediate":  {agent.RoleAnalyst, agent.RoleCoder},
	"setup":      {agent.RolePlanner, agent.RoleCoder},
	"execution":  {agent.RoleCoder},
	"validation": {agent.RoleTester, agent.RoleReviewer},
	"cleanup":    {agent.RoleOptimizer, agent.RoleCoder},
	"deferred":   {agent.RolePlanner},
	"scheduled":  {agent.RolePlanner},
}

var dataRoleTable = map[string][]agent.Role{
	"logs":     {agent.RoleAnalyst, agent.RoleOptimizer},
	"database": {agent.RoleCoder, agent.RoleAnalyst},
	"files":    {agent.RoleCoder},
	"api":      {agent.RoleCoder, agent.RoleReviewer},
	"memory":   {agent.RoleOptimizer, agent.RoleCoder},
	"events":   {agent.RoleCoder, agent.RoleOptimizer},
	"metrics":  {agent.RoleAnalyst, agent.RoleOptimizer},
}

var generalistRoles = []agent.Role{agent.RoleAnalyst, agent.RoleCoder}

// rolesFor looks up the unit's eligible roles, capped at the tier's agent
// budget. Unknown units log once and use the generalist pair.
func rolesFor(table map[string][]agent.Role, strategy decomp.Strategy, unit string, maxAgents int) []agent.Role {
	roles, ok := table[unit]
	if !ok {
		slog.Warn("no role mapping for unit, using generalists", "strategy", strategy, "unit", unit)
		roles = generalistRoles
	}
	if len(roles) > maxAgents {
		roles = roles[:maxAgents]
	}
	return roles
}

func functionalRoutes(a *decomp.Analysis, maxAgents int) []routing.Route {
	matched := make(map[string]bool, len(a.Components))
	for _, c := range a.Components {
		matched[c.Layer] = true
	}

	routes := make([]routing.Route, 0, len(a.Components))
	for _, c := range a.Components {
		// Dependencies outside the matched set are not part of this plan.
		var deps []string
		for _, dep := range c.DependsOn {
			if matched[dep] {
				deps = append(deps, routeID(decomp.StrategyFunctional, dep))
			}
		}
		routes = append(routes, routing.Route{
			ID:             routeID(decomp.StrategyFunctional, c.Layer),
			Strategy:       decomp.StrategyFunctional,
			Unit:           c.Layer,
			Roles:          rolesFor(functionalRoleTable, decomp.StrategyFunctional, c.Layer, maxAgents),
			DependsOn:      deps,
			CanParallelize: len(deps) == 0,
			EstDuration:    time.Duration(c.Effort) * 5 * time.Minute,
		})
	}
	return routes
}

func spatialRoutes(a *decomp.Analysis, maxAgents int) []routing.Route {
	routes := make([]routing.Route, 0, len(a.Zones))
	for _, z := range a.Zones {
		routes = append(routes, routing.Route{
			ID:             routeID(decomp.StrategySpatial, z.Name),
			Strategy:       decomp.StrategySpatial,
			Unit:           z.Name,
			Roles:          rolesFor(spatialRoleTable, decomp.StrategySpatial, z.Name, maxAgents),
			CanParallelize: true,
			EstDuration:    latencyDuration(z.Latency),
			Location:       z.Location,
			Latency:        z.Latency,
		})
	}
	return routes
}

// temporalRoutes walks the sorted phases in order groups: every phase in a
// group depends on the whole previous group, and phases sharing an order
// can run together.
func temporalRoutes(a *decomp.Analysis, maxAgents int) []routing.Route {
	routes := make([]routing.Route, 0, len(a.Phases))
	var prevGroup []string
	for i := 0; i < len(a.Phases); {
		j := i
		for j < len(a.Phases) && a.Phases[j].ExecutionOrder == a.Phases[i].ExecutionOrder {
			j++
		}
		group := a.Phases[i:j]
		ids := make([]string, 0, len(group))
		for _, ph := range group {
			id := routeID(decomp.StrategyTemporal, ph.Name)
			ids = append(ids, id)
			routes = append(routes, routing.Route{
				ID:             id,
				Strategy:       decomp.StrategyTemporal,
				Unit:           ph.Name,
				Roles:          rolesFor(temporalRoleTable, decomp.StrategyTemporal, ph.Name, maxAgents),
				DependsOn:      append([]string(nil), prevGroup...),
				CanParallelize: len(group) > 1,
				EstDuration:    10 * time.Minute,
				Deferred:       ph.CanDefer,
			})
		}
		prevGroup = ids
		i = j
	}
	return routes
}

func dataRoutes(a *decomp.Analysis, maxAgents int) []routing.Route {
	routes := make([]routing.Route, 0, len(a.Segments))
	for _, seg := range a.Segments {
		routes = append(routes, routing.Route{
			ID:             routeID(decomp.StrategyData, seg.DataType),
			Strategy:       decomp.StrategyData,
			Unit:           seg.DataType,
			Roles:          rolesFor(dataRoleTable, decomp.StrategyData, seg.DataType, maxAgents),
			CanParallelize: seg.Processing != decomp.ProcessingSync,
			EstDuration:    volumeDuration(seg.Volume),
		})
	}
	return routes
}

func routeID(s decomp.Strategy, unit string) string {
	return fmt.Sprintf("%s-%s", s, unit)
}

func latencyDuration(latency string) time.Duration {
	switch latency {
	case decomp.LatencyHigh:
		return 20 * time.Minute
	case decomp.LatencyMedium:
		return 10 * time.Minute
	}
	return 5 * time.Minute
}

func volumeDuration(volume string) time.Duration {
	switch volume {
	case "high":
		return 20 * time.Minute
	case "medium":
		return 10 * time.Minute
	}
	return 5 * time.Minute
}

// overlayHybrid folds spatial location/latency and temporal deferability
// onto functional routes, for tasks where no single strategy dominates.
func overlayHybrid(routes []routing.Route, a *decomp.Analysis) {
	zoneForLayer := map[string]string{
		"ui":             "frontend",
		"api":            "backend-api",
		"backend":        "backend-services",
		"database":       "database-layer",
		"infrastructure": "backend-services",
	}
	zones := make(map[string]decomp.Zone, len(a.Zones))
	for _, z := range a.Zones {
		zones[z.Name] = z
	}
	deferable := false
	for _, ph := range a.Phases {
		if ph.CanDefer {
			deferable = true
			break
		}
	}

	for i := range routes {
		if z, ok := zones[zoneForLayer[routes[i].Unit]]; ok {
			routes[i].Location = z.Location
			routes[i].Latency = z.Latency
		}
		if deferable && routes[i].Unit == "documentation" {
			routes[i].Deferred = true
		}
	}
}

// parallelBatches groups routes already marked parallelizable by a shared
// grouping key. A route appears in at most one batch, and singleton groups
// do not form a batch.
func parallelBatches(plan *routing.Plan) []routing.Batch {
	groups := make(map[string][]string)
	var keys []string
	for i := range plan.Routes {
		r := &plan.Routes[i]
		if !r.CanParallelize || len(r.DependsOn) > 0 {
			continue
		}
		key := batchKey(r)
		if len(groups[key]) == 0 {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r.ID)
	}

	var batches []routing.Batch
	for _, key := range keys {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		batches = append(batches, routing.Batch{
			ID:       fmt.Sprintf("batch-%d", len(batches)),
			RouteIDs: ids,
		})
	}
	return batches
}

// batchKey groups independent routes that share a location (spatial) or
// can otherwise interleave freely.
func batchKey(r *routing.Route) string {
	if r.Location != "" {
		return "loc:" + r.Location
	}
	return "strategy:" + string(r.Strategy)
}
