package ledger_test

import (
	"context"
	"testing"
	"time"

	"ldseq/internal/ledger"
	"ldseq/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if err := store.BeginRun(ctx, "run-1", "run", 3, 1); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil {
		t.Fatal("expected run to exist")
	}
	if run.Status != ledger.RunStatusRunning {
		t.Fatalf("unexpected status %q", run.Status)
	}
	if run.Discovered != 3 || run.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", run)
	}
	if run.StartedAt.IsZero() {
		t.Fatal("expected started timestamp")
	}
	if run.FinishedAt != nil {
		t.Fatal("expected open run to have no finish time")
	}
}

func TestOpenIsIdempotentAcrossReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.BeginRun(context.Background(), "run-1", "run", 1, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenLedger(t, cfg)
	run, err := reopened.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun after reopen failed: %v", err)
	}
	if run == nil {
		t.Fatal("expected persisted run after reopen")
	}
}

func TestBeginRunRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	if err := store.BeginRun(context.Background(), "  ", "run", 0, 0); err == nil {
		t.Fatal("expected error for blank run id")
	}
}

func TestFinishRunRecordsOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if err := store.BeginRun(ctx, "run-1", "run", 2, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", 1, 1, ledger.RunStatusFailed, "sample s2 failed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != ledger.RunStatusFailed {
		t.Fatalf("unexpected status %q", run.Status)
	}
	if run.Completed != 1 || run.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", run)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected finish timestamp")
	}
	if run.ErrorMessage != "sample s2 failed" {
		t.Fatalf("unexpected error message %q", run.ErrorMessage)
	}
}

func TestRecordSampleRoundTrips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if err := store.BeginRun(ctx, "run-1", "run", 2, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	results := []ledger.SampleResult{
		{RunID: "run-1", Base: "s1", Outcome: "completed", Stages: "map=executed sort=executed index=executed", Duration: 1500 * time.Millisecond},
		{RunID: "run-1", Base: "s2", Outcome: "failed", FailedStage: "sort", Cause: "tool", ErrorMessage: "exit status 1", Duration: 200 * time.Millisecond},
	}
	for _, result := range results {
		if err := store.RecordSample(ctx, result); err != nil {
			t.Fatalf("RecordSample failed: %v", err)
		}
	}

	fetched, err := store.SampleResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("SampleResults failed: %v", err)
	}
	if len(fetched) != 2 {
		t.Fatalf("expected two results, got %d", len(fetched))
	}
	if fetched[0].Base != "s1" || fetched[0].Outcome != "completed" {
		t.Fatalf("unexpected first result %+v", fetched[0])
	}
	if fetched[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v", fetched[0].Duration)
	}
	if fetched[1].FailedStage != "sort" || fetched[1].Cause != "tool" {
		t.Fatalf("unexpected failure detail %+v", fetched[1])
	}
	if fetched[1].CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}
}

func TestListRunsOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.BeginRun(ctx, id, "run", 1, 0); err != nil {
			t.Fatalf("BeginRun %s failed: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected limit to apply, got %d runs", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != "run-c" {
		t.Fatalf("unexpected latest run %+v", latest)
	}
}

func TestLatestRunOnEmptyLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	latest, err := store.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil run for empty ledger, got %+v", latest)
	}
}

func TestPruneRunsCascadesSampleResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if err := store.BeginRun(ctx, "run-old", "run", 1, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := store.RecordSample(ctx, ledger.SampleResult{RunID: "run-old", Base: "s1", Outcome: "completed"}); err != nil {
		t.Fatalf("RecordSample failed: %v", err)
	}

	removed, err := store.PruneRuns(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned run, got %d", removed)
	}

	results, err := store.SampleResults(ctx, "run-old")
	if err != nil {
		t.Fatalf("SampleResults failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected cascade to remove sample results, got %d", len(results))
	}

	run, err := store.GetRun(ctx, "run-old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run != nil {
		t.Fatal("expected pruned run to be gone")
	}
}
