package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidukas/conductor/internal/domain/workflow"
)

// WorkflowArchive implements archive.Store with an upsert per terminal
// workflow. Writes are bounded so a slow database cannot stall the
// coordinator's completion path.
type WorkflowArchive struct {
	pool         *pgxpool.Pool
	writeTimeout time.Duration
}

// NewWorkflowArchive creates a WorkflowArchive backed by the given pool.
func NewWorkflowArchive(pool *pgxpool.Pool) *WorkflowArchive {
	return &WorkflowArchive{pool: pool, writeTimeout: 5 * time.Second}
}

// SaveWorkflow upserts one terminal workflow. Re-saving the same id
// overwrites the previous row, so a retried completion path stays safe.
func (a *WorkflowArchive) SaveWorkflow(ctx context.Context, wf workflow.Workflow) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("marshal workflow steps: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	_, err = a.pool.Exec(ctx,
		`INSERT INTO workflow_archive
		   (id, task, task_type, tier, topology, status, agent_ids,
		    step_count, error_count, final_output, steps, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   step_count = EXCLUDED.step_count,
		   error_count = EXCLUDED.error_count,
		   final_output = EXCLUDED.final_output,
		   steps = EXCLUDED.steps,
		   finished_at = EXCLUDED.finished_at`,
		wf.ID, wf.Task, string(wf.TaskType), string(wf.Tier), string(wf.Topology),
		string(wf.Status), wf.AgentIDs, len(wf.Steps), len(wf.Errors),
		wf.FinalOutput, stepsJSON, wf.StartedAt, wf.FinishedAt)
	if err != nil {
		return fmt.Errorf("upsert workflow %s: %w", wf.ID, err)
	}
	return nil
}

// ArchivedWorkflow is one row of workflow history.
type ArchivedWorkflow struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Tier        string    `json:"tier"`
	Topology    string    `json:"topology"`
	Status      string    `json:"status"`
	StepCount   int       `json:"step_count"`
	ErrorCount  int       `json:"error_count"`
	FinalOutput string    `json:"final_output,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ListRecent returns archived workflows, most recently finished first.
func (a *WorkflowArchive) ListRecent(ctx context.Context, limit int) ([]ArchivedWorkflow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.pool.Query(ctx,
		`SELECT id, task, tier, topology, status, step_count, error_count,
		        final_output, started_at, finished_at
		 FROM workflow_archive
		 ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived workflows: %w", err)
	}
	defer rows.Close()

	var result []ArchivedWorkflow
	for rows.Next() {
		var w ArchivedWorkflow
		if err := rows.Scan(&w.ID, &w.Task, &w.Tier, &w.Topology, &w.Status,
			&w.StepCount, &w.ErrorCount, &w.FinalOutput, &w.StartedAt, &w.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan archived workflow: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
