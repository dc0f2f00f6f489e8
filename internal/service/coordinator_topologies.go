package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/workflow"
)

// executeSequential runs the assigned agents strictly in order, threading
// each step's output into the next step's prompt. A step failure aborts the
// remaining steps after the one-shot fallback is exhausted.
func (s *CoordinatorService) executeSequential(ctx context.Context, wf *workflow.Workflow, assigned []*agent.Agent, run *runState) error {
	prompt := run.req.Task
	for _, ag := range assigned {
		output, err := s.runStep(ctx, wf, ag, string(ag.Role), "", prompt, run.req.Context, run)
		if err != nil {
			return fmt.Errorf("sequential stage %s: %w", ag.Role, err)
		}
		prompt = fmt.Sprintf("%s\n\nPrevious output:\n%s", run.req.Task, output)
	}
	return nil
}

// pipelineStages is the fixed stage order for the pipeline topology.
var pipelineStages = []agent.Role{
	agent.RoleResearcher,
	agent.RolePlanner,
	agent.RoleCoder,
	agent.RoleReviewer,
}

// executePipeline runs the fixed stage order, skipping stages with no
// assigned agent. Each stage's output becomes the next stage's input,
// announced to the next live stage via a handoff message.
func (s *CoordinatorService) executePipeline(ctx context.Context, wf *workflow.Workflow, assigned []*agent.Agent, run *runState) error {
	prompt := run.req.Task
	var prev *agent.Agent
	var prevOutput string
	for _, stage := range pipelineStages {
		ag := byRole(assigned, stage)
		if ag == nil {
			slog.Debug("pipeline stage skipped, no agent", "workflow_id", wf.ID, "stage", stage)
			continue
		}
		if prev != nil {
			if _, err := s.protocol.HandoffTask(prev.ID, ag.ID, run.req.Task, map[string]any{
				"stage":    string(stage),
				"artifact": prevOutput,
			}); err != nil {
				slog.Warn("handoff failed", "from", prev.ID, "to", ag.ID, "error", err)
			}
		}

		output, err := s.runStep(ctx, wf, ag, string(stage), "", prompt, run.req.Context, run)
		if err != nil {
			return fmt.Errorf("pipeline stage %s: %w", stage, err)
		}
		prompt = fmt.Sprintf("%s\n\n%s output:\n%s", run.req.Task, stage, output)
		prevOutput = output
		prev = ag
	}
	return nil
}

// executeCollaborative runs the fixed hierarchical-parallel stage graph:
// analyst first (result broadcast to all peers), researcher and planner
// concurrently on the analyst's output, coder on both, then reviewer and
// optimizer concurrently on the coder's output.
func (s *CoordinatorService) executeCollaborative(ctx context.Context, wf *workflow.Workflow, assigned []*agent.Agent, run *runState) error {
	task := run.req.Task

	analysis, err := s.collabStage(ctx, wf, assigned, agent.RoleAnalyst, task, run)
	if err != nil {
		return err
	}
	if ag := byRole(assigned, agent.RoleAnalyst); ag != nil && analysis != "" {
		s.broadcastToPeers(ag, assigned, analysis)
	}

	seeded := fmt.Sprintf("%s\n\nAnalysis:\n%s", task, analysis)
	var research, plan string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.collabStage(gctx, wf, assigned, agent.RoleResearcher, seeded, run)
		research = out
		return err
	})
	g.Go(func() error {
		out, err := s.collabStage(gctx, wf, assigned, agent.RolePlanner, seeded, run)
		plan = out
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	coderPrompt := fmt.Sprintf("%s\n\nAnalysis:\n%s\n\nResearch:\n%s\n\nPlan:\n%s", task, analysis, research, plan)
	code, err := s.collabStage(ctx, wf, assigned, agent.RoleCoder, coderPrompt, run)
	if err != nil {
		return err
	}

	reviewPrompt := fmt.Sprintf("%s\n\nImplementation:\n%s", task, code)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.collabStage(gctx, wf, assigned, agent.RoleReviewer, reviewPrompt, run)
		return err
	})
	g.Go(func() error {
		_, err := s.collabStage(gctx, wf, assigned, agent.RoleOptimizer, reviewPrompt, run)
		return err
	})
	return g.Wait()
}

// collabStage runs one stage of the collaborative graph. A stage with no
// assigned agent is skipped with an empty output.
func (s *CoordinatorService) collabStage(ctx context.Context, wf *workflow.Workflow, assigned []*agent.Agent, role agent.Role, prompt string, run *runState) (string, error) {
	ag := byRole(assigned, role)
	if ag == nil {
		slog.Debug("collaborative stage skipped, no agent", "workflow_id", wf.ID, "stage", role)
		return "", nil
	}
	output, err := s.runStep(ctx, wf, ag, string(role), "", prompt, run.req.Context, run)
	if err != nil {
		return "", fmt.Errorf("collaborative stage %s: %w", role, err)
	}
	return output, nil
}

// byRole returns the first assigned agent with the given role.
func byRole(agents []*agent.Agent, role agent.Role) *agent.Agent {
	for _, a := range agents {
		if a.Role == role {
			return a
		}
	}
	return nil
}
