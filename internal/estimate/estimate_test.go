package estimate_test

import (
	"testing"
	"time"

	"tagpipe/internal/config"
	"tagpipe/internal/estimate"
	"tagpipe/internal/results"
)

func estimatorConfig() config.Estimator {
	return config.Estimator{
		InteractiveRPS: 0.7,
		BatchRPS:       15.0,
		BatchOverheadS: 60.0,
		CostPerItem:    0.0004,
	}
}

func TestPlanSmallBacklogStaysInteractive(t *testing.T) {
	est := estimate.Plan(estimatorConfig(), 500, 100)
	if est.Recommended != results.ModeInteractive {
		t.Fatalf("100 items should run interactively, got %s", est.Recommended)
	}
	seconds := float64(100) / 0.7 * float64(time.Second)
	want := time.Duration(seconds)
	if est.Interactive != want {
		t.Fatalf("interactive = %s, want %s", est.Interactive, want)
	}
}

func TestPlanLargeBacklogPrefersBatch(t *testing.T) {
	est := estimate.Plan(estimatorConfig(), 500, 5000)
	if est.Recommended != results.ModeBatch {
		t.Fatalf("5000 items should use batch, got %s", est.Recommended)
	}
	if est.Batch >= est.Interactive {
		t.Fatalf("batch (%s) should beat interactive (%s) at this size", est.Batch, est.Interactive)
	}
}

func TestPlanThresholdGatesBatch(t *testing.T) {
	// One item under the threshold stays interactive even though batch
	// would be faster in wall time.
	est := estimate.Plan(estimatorConfig(), 500, 499)
	if est.Recommended != results.ModeInteractive {
		t.Fatalf("below min_batch should stay interactive, got %s", est.Recommended)
	}
	est = estimate.Plan(estimatorConfig(), 500, 500)
	if est.Recommended != results.ModeBatch {
		t.Fatalf("at min_batch, expected batch, got %s", est.Recommended)
	}
}

func TestPlanThresholdOnlyIgnoresWallTime(t *testing.T) {
	// The recommendation is purely threshold-based: once the backlog
	// reaches min_batch, batch wins even when its projected wall time,
	// overhead included, is worse than interactive.
	cfg := estimatorConfig()
	est := estimate.Plan(cfg, 2, 3)
	if est.Batch <= est.Interactive {
		t.Fatalf("scenario needs batch (%s) slower than interactive (%s)", est.Batch, est.Interactive)
	}
	if est.Recommended != results.ModeBatch {
		t.Fatalf("3 items at min_batch=2 should use batch, got %s", est.Recommended)
	}
}

func TestPlanRecommendationMonotonicInCount(t *testing.T) {
	cfg := estimatorConfig()
	sawBatch := false
	for n := 0; n <= 2000; n += 50 {
		est := estimate.Plan(cfg, 500, n)
		if sawBatch && est.Recommended != results.ModeBatch {
			t.Fatalf("recommendation flipped back to interactive at n=%d", n)
		}
		if est.Recommended == results.ModeBatch {
			sawBatch = true
		}
	}
	if !sawBatch {
		t.Fatal("expected batch to be recommended for large n")
	}
}

func TestPlanCostPerItem(t *testing.T) {
	est := estimate.Plan(estimatorConfig(), 500, 1000)
	if diff := est.CostUSD - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("cost = %f, want 0.4", est.CostUSD)
	}
}

func TestPlanCostFromTokens(t *testing.T) {
	cfg := config.Estimator{
		InteractiveRPS:  0.7,
		BatchRPS:        15.0,
		InputTokens:     300,
		OutputTokens:    150,
		CostPer1KInput:  0.00015,
		CostPer1KOutput: 0.0006,
	}
	est := estimate.Plan(cfg, 500, 1000)
	want := (300.0/1000*0.00015 + 150.0/1000*0.0006) * 1000
	if diff := est.CostUSD - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("cost = %f, want %f", est.CostUSD, want)
	}
}

func TestPlanZeroItems(t *testing.T) {
	est := estimate.Plan(estimatorConfig(), 500, 0)
	if est.Interactive != 0 || est.Batch != 0 || est.CostUSD != 0 {
		t.Fatalf("zero items should project zero effort: %+v", est)
	}
	if est.Recommended != results.ModeInteractive {
		t.Fatalf("zero items defaults to interactive, got %s", est.Recommended)
	}
}

func TestPlanBatchETAMonotonicInCount(t *testing.T) {
	cfg := estimatorConfig()
	var prev time.Duration
	for n := 0; n <= 5000; n += 100 {
		est := estimate.Plan(cfg, 500, n)
		if est.Batch < prev {
			t.Fatalf("batch ETA decreased at n=%d: %v < %v", n, est.Batch, prev)
		}
		prev = est.Batch
	}
}
