package results_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tagpipe/internal/results"
	"tagpipe/internal/testsupport"
)

func TestWriteResultEnforcesProviderCoverage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	wrote, err := store.WriteResult(ctx, results.LabelResult{
		ItemID:   "item-1",
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		Payload:  `{"summary":"white kitchen"}`,
		Summary:  "white kitchen",
	})
	if err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	if !wrote {
		t.Fatal("expected first write to insert")
	}

	// Second write for the same item+provider must be a no-op even with a
	// different model: coverage is provider-level.
	wrote, err = store.WriteResult(ctx, results.LabelResult{
		ItemID:   "item-1",
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Payload:  `{"summary":"duplicate"}`,
	})
	if err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	if wrote {
		t.Fatal("expected duplicate write to be skipped")
	}

	count, err := store.CountResults(ctx, "gemini")
	if err != nil {
		t.Fatalf("CountResults failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 result row, got %d", count)
	}

	covered, err := store.HasCoverage(ctx, "item-1", "gemini")
	if err != nil {
		t.Fatalf("HasCoverage failed: %v", err)
	}
	if !covered {
		t.Fatal("expected coverage for item-1")
	}
	if covered, _ := store.HasCoverage(ctx, "item-1", "other"); covered {
		t.Fatal("coverage must be scoped per provider")
	}
}

func TestForceResultBypassesCoverage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.ForceResult(ctx, results.LabelResult{
			ItemID:   "item-2",
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Payload:  `{}`,
		}); err != nil {
			t.Fatalf("ForceResult failed: %v", err)
		}
	}
	count, err := store.CountResults(ctx, "gemini")
	if err != nil {
		t.Fatalf("CountResults failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after forced re-run, got %d", count)
	}
}

func TestWriteErrorTruncatesDiagnostic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.WriteError(ctx, results.LabelError{
		ItemID:     "item-3",
		Provider:   "gemini",
		Model:      "gemini-2.5-flash",
		Kind:       results.KindMalformedResponse,
		Diagnostic: strings.Repeat("x", 20_000),
	}); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}

	errs, err := store.ListErrors(ctx, results.ErrorFilter{Provider: "gemini"})
	if err != nil {
		t.Fatalf("ListErrors failed: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error row, got %d", len(errs))
	}
	if len(errs[0].Diagnostic) != 10_000 {
		t.Fatalf("expected truncated diagnostic, got %d bytes", len(errs[0].Diagnostic))
	}
	if errs[0].Kind != results.KindMalformedResponse {
		t.Fatalf("unexpected kind: %s", errs[0].Kind)
	}
}

func TestListErrorsMarksResolvedAfter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	early := time.Now().UTC().Add(-time.Hour)
	if err := store.WriteError(ctx, results.LabelError{
		ItemID:    "item-4",
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		Kind:      results.KindNetwork,
		CreatedAt: early,
	}); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}
	if err := store.WriteError(ctx, results.LabelError{
		ItemID:    "item-5",
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		Kind:      results.KindNetwork,
		CreatedAt: early,
	}); err != nil {
		t.Fatalf("WriteError failed: %v", err)
	}

	// item-4 later succeeds; item-5 never does.
	if _, err := store.WriteResult(ctx, results.LabelResult{
		ItemID:   "item-4",
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		Payload:  `{}`,
	}); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}

	errs, err := store.ListErrors(ctx, results.ErrorFilter{Provider: "gemini"})
	if err != nil {
		t.Fatalf("ListErrors failed: %v", err)
	}
	byItem := map[string]bool{}
	for _, e := range errs {
		byItem[e.ItemID] = e.ResolvedAfter
	}
	if !byItem["item-4"] {
		t.Fatal("item-4 error should be resolved by later result")
	}
	if byItem["item-5"] {
		t.Fatal("item-5 error should remain unresolved")
	}
}

func TestUnresolvedItemIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	writeKind := func(item string, kind results.ErrorKind) {
		t.Helper()
		if err := store.WriteError(ctx, results.LabelError{
			ItemID: item, Provider: "gemini", Model: "m", Kind: kind,
		}); err != nil {
			t.Fatalf("WriteError failed: %v", err)
		}
	}
	writeKind("u1", results.KindPreflightUnresolved)
	writeKind("u2", results.KindNetwork)
	writeKind("u3", results.KindPreflightUnresolved)

	// u3 later gains coverage, so it no longer counts as unresolved.
	if _, err := store.WriteResult(ctx, results.LabelResult{
		ItemID: "u3", Provider: "gemini", Model: "m", Payload: `{}`,
	}); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}

	unresolved, err := store.UnresolvedItemIDs(ctx, "gemini", results.KindPreflightUnresolved)
	if err != nil {
		t.Fatalf("UnresolvedItemIDs failed: %v", err)
	}
	if _, ok := unresolved["u1"]; !ok {
		t.Fatal("u1 should be unresolved")
	}
	if _, ok := unresolved["u2"]; ok {
		t.Fatal("u2 has a different kind and should not match")
	}
	if _, ok := unresolved["u3"]; ok {
		t.Fatal("u3 is covered and should not match")
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run, err := store.StartRun(ctx, results.ModeInteractive, "gemini", "gemini-2.5-flash", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID")
	}

	totals := results.Totals{Candidates: 100, Labeled: 95, FallbackLabeled: 10, Errored: 3, Skipped: 2}
	if err := store.FinalizeRun(ctx, run.ID, totals); err != nil {
		t.Fatalf("FinalizeRun failed: %v", err)
	}

	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched == nil || fetched.Labeled != 95 || fetched.FinishedAt == nil {
		t.Fatalf("unexpected finalized run: %#v", fetched)
	}

	// RunRecord is immutable once finalized.
	if err := store.FinalizeRun(ctx, run.ID, totals); err == nil {
		t.Fatal("expected second FinalizeRun to fail")
	}
}

func TestBatchJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.CreateBatchJob(ctx, results.BatchJob{
		Model:        "gemini-2.5-flash",
		InputPath:    "/tmp/input_001.jsonl",
		MapPath:      "/tmp/map_001.jsonl",
		RequestCount: 42,
		InputBytes:   1024,
	})
	if err != nil {
		t.Fatalf("CreateBatchJob failed: %v", err)
	}
	if job.State != results.JobPending || job.Submitted() {
		t.Fatalf("fresh job should be pending and unsubmitted: %#v", job)
	}

	if err := store.MarkSubmitted(ctx, job.ID, "batches/abc123", "files/input9"); err != nil {
		t.Fatalf("MarkSubmitted failed: %v", err)
	}
	fetched, err := store.GetBatchJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if !fetched.Submitted() || fetched.RemoteName != "batches/abc123" {
		t.Fatalf("expected submitted job, got %#v", fetched)
	}

	open, err := store.OpenBatchJobs(ctx)
	if err != nil {
		t.Fatalf("OpenBatchJobs failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open job, got %d", len(open))
	}

	if err := store.SetJobOutput(ctx, job.ID, "files/out7", "/tmp/output_001.jsonl"); err != nil {
		t.Fatalf("SetJobOutput failed: %v", err)
	}
	if err := store.SetJobState(ctx, job.ID, results.JobIngested, ""); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}

	open, err = store.OpenBatchJobs(ctx)
	if err != nil {
		t.Fatalf("OpenBatchJobs failed: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("ingested job should not be open, got %d", len(open))
	}

	final, err := store.GetBatchJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if !final.Terminal() || final.OutputFileID != "files/out7" {
		t.Fatalf("unexpected final job: %#v", final)
	}
}

func TestWriteResultConcurrentWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const workers = 20
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			wrote, err := store.WriteResult(ctx, results.LabelResult{
				ItemID:   fmt.Sprintf("item-%02d", n),
				Provider: "gemini",
				Model:    "gemini-2.5-flash",
				Payload:  `{"tags":["ocean"]}`,
			})
			if err != nil {
				errs <- err
				return
			}
			if !wrote {
				errs <- fmt.Errorf("item-%02d: expected insert", n)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent WriteResult: %v", err)
	}

	count, err := store.CountResults(ctx, "gemini")
	if err != nil {
		t.Fatalf("CountResults failed: %v", err)
	}
	if count != workers {
		t.Fatalf("stored %d results, want %d", count, workers)
	}
}

func TestWriteResultConcurrentSameItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	var inserted atomic.Int64
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			wrote, err := store.WriteResult(ctx, results.LabelResult{
				ItemID:   "item-1",
				Provider: "gemini",
				Model:    "gemini-2.5-flash",
				Payload:  fmt.Sprintf(`{"writer":%d}`, n),
			})
			if err != nil {
				errs <- err
				return
			}
			if wrote {
				inserted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent WriteResult: %v", err)
	}
	if got := inserted.Load(); got != 1 {
		t.Fatalf("%d writers inserted, want exactly 1", got)
	}
}
