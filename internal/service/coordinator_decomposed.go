package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/routing"
	"github.com/voidukas/conductor/internal/domain/workflow"
)

// executeDecomposed runs the routing plan directly: each parallel batch's
// member routes execute concurrently on distinct agents, then every route
// not covered by a batch runs sequentially in plan order, with prior route
// outputs threaded into each subsequent route's context. A strategy-specific
// synthesis is attached once all routes complete.
func (s *CoordinatorService) executeDecomposed(ctx context.Context, wf *workflow.Workflow, assigned []*agent.Agent, run *runState) error {
	plan := wf.Plan
	outputs := make(map[string]string, len(plan.Routes))

	for _, batch := range plan.Batches {
		if err := s.executeBatch(ctx, wf, plan, batch, assigned, outputs, run); err != nil {
			return err
		}
	}

	for _, id := range plan.Order {
		if plan.Batched(id) {
			continue
		}
		route := plan.Route(id)
		if route == nil {
			continue
		}
		ag := routeAgent(assigned, route, nil)
		if ag == nil {
			slog.Debug("route skipped, no matching agent", "workflow_id", wf.ID, "route", route.ID)
			continue
		}
		output, err := s.runRoute(ctx, wf, ag, route, outputs, run)
		if err != nil {
			return err
		}
		outputs[route.ID] = output
	}

	run.mu.Lock()
	wf.Synthesis = synthesize(plan, outputs)
	run.mu.Unlock()
	return nil
}

// executeBatch fans the batch's routes out concurrently, bounded by the
// batch worker limit. Routes that cannot be mapped to a distinct agent are
// skipped, not failed.
func (s *CoordinatorService) executeBatch(ctx context.Context, wf *workflow.Workflow, plan *routing.Plan, batch routing.Batch, assigned []*agent.Agent, outputs map[string]string, run *runState) error {
	// Claim a distinct agent per member up front so concurrent routes never
	// share a worker.
	claimed := make(map[string]bool, len(batch.RouteIDs))
	type unit struct {
		route *routing.Route
		ag    *agent.Agent
	}
	var units []unit
	for _, id := range batch.RouteIDs {
		route := plan.Route(id)
		if route == nil {
			continue
		}
		ag := routeAgent(assigned, route, claimed)
		if ag == nil {
			slog.Debug("batched route skipped, no matching agent", "workflow_id", wf.ID, "route", id)
			continue
		}
		claimed[ag.ID] = true
		units = append(units, unit{route: route, ag: ag})
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.maxBatchWorkers > 0 {
		g.SetLimit(s.maxBatchWorkers)
	}
	for _, u := range units {
		g.Go(func() error {
			output, err := s.runRoute(gctx, wf, u.ag, u.route, outputs, run)
			if err != nil {
				return err
			}
			run.mu.Lock()
			outputs[u.route.ID] = output
			run.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// runRoute executes a single route as one workflow step, seeding the prompt
// with the task and any prior route outputs.
func (s *CoordinatorService) runRoute(ctx context.Context, wf *workflow.Workflow, ag *agent.Agent, route *routing.Route, outputs map[string]string, run *runState) (string, error) {
	prompt := fmt.Sprintf("%s\n\nUnit: %s (%s decomposition)", run.req.Task, route.Unit, route.Strategy)

	stepCtx := make(map[string]any, len(run.req.Context)+1)
	for k, v := range run.req.Context {
		stepCtx[k] = v
	}
	run.mu.Lock()
	prior := make(map[string]string, len(route.DependsOn))
	for _, dep := range route.DependsOn {
		if out, ok := outputs[dep]; ok {
			prior[dep] = out
		}
	}
	run.mu.Unlock()
	if len(prior) > 0 {
		stepCtx["prior_outputs"] = prior
	}

	output, err := s.runStep(ctx, wf, ag, route.Unit, route.ID, prompt, stepCtx, run)
	if err != nil {
		return "", fmt.Errorf("route %s: %w", route.ID, err)
	}
	return output, nil
}

// routeAgent maps a route to the first assigned agent whose role matches
// the route's eligible roles and is not already claimed.
func routeAgent(assigned []*agent.Agent, route *routing.Route, claimed map[string]bool) *agent.Agent {
	for _, role := range route.Roles {
		for _, a := range assigned {
			if a.Role == role && !claimed[a.ID] {
				return a
			}
		}
	}
	return nil
}

// synthesize builds the strategy-specific summary from route outputs.
func synthesize(plan *routing.Plan, outputs map[string]string) map[string]any {
	switch plan.Strategy {
	case decomp.StrategyFunctional:
		layers := make(map[string]any)
		for _, r := range plan.Routes {
			if out, ok := outputs[r.ID]; ok {
				layers[r.Unit] = out
			}
		}
		return map[string]any{"strategy": "functional", "layers": layers}

	case decomp.StrategySpatial:
		zones := make(map[string]any)
		for _, r := range plan.Routes {
			if out, ok := outputs[r.ID]; ok {
				zones[r.Unit] = map[string]any{
					"output":   out,
					"location": r.Location,
					"latency":  r.Latency,
				}
			}
		}
		return map[string]any{"strategy": "spatial", "zones": zones}

	case decomp.StrategyTemporal:
		var executed, deferred []map[string]any
		for _, id := range plan.Order {
			r := plan.Route(id)
			if r == nil {
				continue
			}
			out, ok := outputs[r.ID]
			if !ok {
				continue
			}
			entry := map[string]any{"phase": r.Unit, "output": out}
			if r.Deferred {
				deferred = append(deferred, entry)
			} else {
				executed = append(executed, entry)
			}
		}
		return map[string]any{"strategy": "temporal", "executed": executed, "deferred": deferred}

	case decomp.StrategyData:
		segments := make(map[string]any)
		for _, r := range plan.Routes {
			if out, ok := outputs[r.ID]; ok {
				segments[r.Unit] = out
			}
		}
		return map[string]any{"strategy": "data", "segments": segments}
	}

	raw := make(map[string]any, len(outputs))
	for id, out := range outputs {
		raw[id] = out
	}
	return map[string]any{"strategy": string(plan.Strategy), "routes": raw}
}
