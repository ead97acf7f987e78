package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestHistory(t *testing.T) *HistoryStore {
	t.Helper()

	store, err := NewHistoryStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func sampleExecution(planID string, reason TerminationReason) *Execution {
	started := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	return &Execution{
		PlanID:       planID,
		Owner:        "astro",
		Instrument:   "deepspec",
		Quorum:       2,
		Committed:    1,
		Reason:       reason,
		Details:      []string{"only 1 units (quorum: 2)"},
		RecordPath:   "/var/lib/specfleet/failed/" + planID + ".toml",
		StartedAt:    started,
		TerminatedAt: started.Add(5 * time.Minute),
		Events: []ExecutionEvent{
			{What: "run", At: started},
			{What: "terminated", Details: []string{"reason: " + string(reason)}, At: started.Add(5 * time.Minute)},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	exec := sampleExecution("plan-1", ReasonRejected)
	if err := store.RecordTermination(ctx, exec); err != nil {
		t.Fatalf("RecordTermination: %v", err)
	}

	got, err := store.GetExecution(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Reason != ReasonRejected {
		t.Errorf("Expected rejected, got %s", got.Reason)
	}
	if got.Committed != 1 || got.Quorum != 2 {
		t.Errorf("Counts not round-tripped: %+v", got)
	}
	if len(got.Details) != 1 || got.Details[0] != "only 1 units (quorum: 2)" {
		t.Errorf("Details not round-tripped: %v", got.Details)
	}
	if len(got.Events) != 2 || got.Events[0].What != "run" || got.Events[1].What != "terminated" {
		t.Errorf("Event trail not round-tripped: %+v", got.Events)
	}
	if got.Duration() != 5*time.Minute {
		t.Errorf("Unexpected duration: %v", got.Duration())
	}
}

func TestGetMissingExecution(t *testing.T) {
	store := newTestHistory(t)
	if _, err := store.GetExecution(context.Background(), "no-such"); err == nil {
		t.Error("Expected error for a missing execution")
	}
}

func TestRecordRejectsInvalidReason(t *testing.T) {
	store := newTestHistory(t)
	exec := sampleExecution("plan-x", "aborted")
	if err := store.RecordTermination(context.Background(), exec); err == nil {
		t.Error("Expected invalid reason to be refused")
	}
}

func TestRecordDuplicateFails(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	if err := store.RecordTermination(ctx, sampleExecution("plan-1", ReasonCompleted)); err != nil {
		t.Fatalf("RecordTermination: %v", err)
	}
	if err := store.RecordTermination(ctx, sampleExecution("plan-1", ReasonFailed)); err == nil {
		t.Error("Expected duplicate plan id to be refused")
	}
}

func TestListExecutions(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	first := sampleExecution("plan-1", ReasonCompleted)
	second := sampleExecution("plan-2", ReasonFailed)
	second.StartedAt = first.StartedAt.Add(time.Hour)
	second.TerminatedAt = first.TerminatedAt.Add(time.Hour)
	third := sampleExecution("plan-3", ReasonRejected)
	third.StartedAt = first.StartedAt.Add(2 * time.Hour)
	third.TerminatedAt = first.TerminatedAt.Add(2 * time.Hour)

	for _, exec := range []*Execution{first, second, third} {
		if err := store.RecordTermination(ctx, exec); err != nil {
			t.Fatalf("RecordTermination(%s): %v", exec.PlanID, err)
		}
	}

	all, err := store.ListExecutions(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 executions, got %d", len(all))
	}
	if all[0].PlanID != "plan-3" {
		t.Errorf("Expected newest first, got %s", all[0].PlanID)
	}

	failed, err := store.ListExecutions(ctx, ReasonFailed, 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions(failed): %v", err)
	}
	if len(failed) != 1 || failed[0].PlanID != "plan-2" {
		t.Errorf("Reason filter broken: %+v", failed)
	}

	page, err := store.ListExecutions(ctx, "", 1, 1)
	if err != nil {
		t.Fatalf("ListExecutions(page): %v", err)
	}
	if len(page) != 1 || page[0].PlanID != "plan-2" {
		t.Errorf("Pagination broken: %+v", page)
	}

	if _, err := store.ListExecutions(ctx, "aborted", 10, 0); err == nil {
		t.Error("Expected invalid reason filter to be refused")
	}
}
