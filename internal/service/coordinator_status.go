package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/event"
	"github.com/voidukas/conductor/internal/domain/tier"
	"github.com/voidukas/conductor/internal/domain/workflow"
)

// PoolStatus reports the live agent pool.
type PoolStatus struct {
	Tier     tier.Tier            `json:"tier"`
	Topology tier.Topology        `json:"topology"`
	Agents   []agent.Agent        `json:"agents"`
	Counts   map[agent.Status]int `json:"counts"`
}

// Statistics aggregates workflow execution counters.
type Statistics struct {
	Executed    int           `json:"executed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	Active      int           `json:"active"`
	Retained    int           `json:"retained"`
	AvgDuration time.Duration `json:"avg_duration"`

	// AnalysisHitRate is the fraction of decomposition analyses served
	// from cache, over all analyses performed so far.
	AnalysisHitRate float64 `json:"analysis_hit_rate"`
}

// GetWorkflowStatus returns a snapshot of the workflow with the given id.
func (s *CoordinatorService) GetWorkflowStatus(id string) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	snapshot := *wf
	return &snapshot, nil
}

// ListWorkflows returns snapshots of retained workflows, newest first.
func (s *CoordinatorService) ListWorkflows() []workflow.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]workflow.Workflow, 0, len(s.workflows))
	for i := len(s.order) - 1; i >= 0; i-- {
		if wf, ok := s.workflows[s.order[i]]; ok {
			out = append(out, *wf)
		}
	}
	return out
}

// GetAgentPoolStatus reports the live pool. Fails before Initialize.
func (s *CoordinatorService) GetAgentPoolStatus() (*PoolStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, fmt.Errorf("agent pool status: %w", domain.ErrNotInitialized)
	}
	return &PoolStatus{
		Tier:     s.tier,
		Topology: s.tier.Topology(),
		Agents:   s.pool.Snapshot(),
		Counts:   s.pool.CountByStatus(),
	}, nil
}

// GetStatistics aggregates execution counters over retained workflows.
func (s *CoordinatorService) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		Executed:  s.executed,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Retained:  len(s.workflows),
	}
	if s.executed > 0 {
		stats.SuccessRate = float64(s.succeeded) / float64(s.executed)
	}

	var total time.Duration
	var finished int
	for _, wf := range s.workflows {
		if wf.Status == workflow.StatusRunning {
			stats.Active++
			continue
		}
		total += wf.Duration()
		finished++
	}
	if finished > 0 {
		stats.AvgDuration = total / time.Duration(finished)
	}
	if s.router != nil {
		if hits, misses := s.router.AnalysisCacheStats(); hits+misses > 0 {
			stats.AnalysisHitRate = float64(hits) / float64(hits+misses)
		}
	}
	return stats
}

// CancelWorkflow marks a running workflow failed and releases the agents
// still assigned to it. In-flight steps are aborted through the execution
// context; their cancellation errors land on the already-terminal workflow.
func (s *CoordinatorService) CancelWorkflow(id string) error {
	s.mu.Lock()
	wf, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("cancel workflow %s: %w", id, domain.ErrNotFound)
	}
	if wf.Status.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("cancel workflow %s: already %s", id, wf.Status)
	}
	wf.RecordError("", "cancel", "cancelled by caller")
	wf.Finish(true)
	s.executed++
	s.failed++
	pool := s.pool
	cancel := s.cancels[id]
	delete(s.cancels, id)
	evt := event.WorkflowEvent{
		WorkflowID: wf.ID,
		Tier:       string(wf.Tier),
		Topology:   string(wf.Topology),
		Status:     string(wf.Status),
		StepCount:  len(wf.Steps),
		Error:      "cancelled by caller",
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.broadcaster.BroadcastEvent(context.Background(), event.WorkflowComplete, evt)

	if pool != nil {
		for _, snap := range pool.Snapshot() {
			if snap.CurrentTask == id {
				pool.Release(snap.ID, false)
				s.resources.ClearAgentResources(snap.ID)
			}
		}
	}
	slog.Info("workflow cancelled", "workflow_id", id)
	return nil
}
