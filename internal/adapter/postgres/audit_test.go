package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/voidukas/conductor/internal/adapter/postgres"
	"github.com/voidukas/conductor/internal/port/auditlog"
)

// setupArchive builds an audit Archive on a migrated test database.
func setupArchive(t *testing.T) *postgres.Archive {
	t.Helper()
	return postgres.NewArchive(setupPool(t))
}

func TestArchiveRecordAndList(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()

	actor := "coordinator-test-" + time.Now().Format("150405.000")

	entries := []auditlog.Entry{
		{Actor: actor, Action: "initialize", Decision: "team", At: time.Now().Add(-2 * time.Second)},
		{Actor: actor, Action: "decision_resolved", Decision: "approved",
			Context: map[string]any{"votes": float64(3)}, At: time.Now()},
	}
	for _, e := range entries {
		if err := archive.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	archive.Close() // drain the background writer

	if n := archive.Dropped(); n != 0 {
		t.Fatalf("dropped %d entries, want 0", n)
	}
	got, err := archive.ListByActor(ctx, actor, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Action != "decision_resolved" {
		t.Errorf("first action = %q, want decision_resolved", got[0].Action)
	}
	if got[0].Context["votes"] != float64(3) {
		t.Errorf("context votes = %v, want 3", got[0].Context["votes"])
	}
}

func TestArchiveRecordZeroTime(t *testing.T) {
	archive := setupArchive(t)
	actor := "zero-time-test-" + time.Now().Format("150405.000")

	err := archive.Record(context.Background(), auditlog.Entry{
		Actor:  actor,
		Action: "noop",
	})
	if err != nil {
		t.Fatalf("record with zero time: %v", err)
	}
	archive.Close()

	got, err := archive.ListByActor(context.Background(), actor, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].At.IsZero() {
		t.Error("persisted entry has zero occurred_at")
	}
}
