package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidukas/conductor/internal/adapter/postgres"
	"github.com/voidukas/conductor/internal/config"
	"github.com/voidukas/conductor/internal/domain/tier"
	"github.com/voidukas/conductor/internal/domain/workflow"
)

// setupPool connects to DATABASE_URL and runs all migrations, skipping the
// test when no database is configured. The pool is closed via t.Cleanup.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := postgres.NewPool(ctx, config.Postgres{
		DSN:             dsn,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestWorkflowArchiveSaveAndList(t *testing.T) {
	store := postgres.NewWorkflowArchive(setupPool(t))
	ctx := context.Background()

	id := "wf-test-" + time.Now().Format("150405.000000000")
	wf := workflow.Workflow{
		ID:       id,
		Task:     "review the parser changes",
		Tier:     tier.Pro,
		Topology: tier.TopologyPipeline,
		Status:   workflow.StatusCompleted,
		AgentIDs: []string{"coder-0", "reviewer-0"},
		Steps: []workflow.Step{
			{AgentID: "coder-0", Role: "coder", Output: "patched"},
			{Index: 1, AgentID: "reviewer-0", Role: "reviewer", Output: "approved"},
		},
		FinalOutput: "approved",
		StartedAt:   time.Now().Add(-time.Minute),
		FinishedAt:  time.Now(),
	}

	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var found *postgres.ArchivedWorkflow
	for i := range got {
		if got[i].ID == id {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatalf("workflow %s missing from recent list", id)
	}
	if found.StepCount != 2 {
		t.Errorf("step count = %d, want 2", found.StepCount)
	}
	if found.FinalOutput != "approved" {
		t.Errorf("final output = %q, want approved", found.FinalOutput)
	}
}

func TestWorkflowArchiveUpsert(t *testing.T) {
	store := postgres.NewWorkflowArchive(setupPool(t))
	ctx := context.Background()

	id := "wf-upsert-" + time.Now().Format("150405.000000000")
	wf := workflow.Workflow{
		ID:         id,
		Task:       "retry me",
		Tier:       tier.Free,
		Topology:   tier.TopologySequential,
		Status:     workflow.StatusFailed,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("first save: %v", err)
	}

	wf.Status = workflow.StatusCompleted
	wf.FinalOutput = "second attempt"
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.ListRecent(ctx, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, w := range got {
		if w.ID == id {
			if w.Status != string(workflow.StatusCompleted) {
				t.Errorf("status = %q, want completed after upsert", w.Status)
			}
			return
		}
	}
	t.Fatalf("workflow %s missing from recent list", id)
}
