// Package estimate projects run duration and cost for a candidate count
// and recommends whether to label interactively or through the batch
// pipeline. The projection is deliberately simple: fixed throughput
// constants per mode plus a flat submission overhead for batch.
package estimate

import (
	"time"

	"tagpipe/internal/config"
	"tagpipe/internal/results"
)

// Estimate is the projected shape of a run over Items candidates.
type Estimate struct {
	Items       int
	Interactive time.Duration
	Batch       time.Duration
	CostUSD     float64
	Recommended results.RunMode
}

// Plan projects both modes for n items. Batch is recommended once the
// backlog reaches minBatch; smaller backlogs always run interactively
// because the submission overhead dominates. The projected durations
// are informational and do not affect the recommendation.
func Plan(cfg config.Estimator, minBatch, n int) Estimate {
	if n < 0 {
		n = 0
	}
	est := Estimate{
		Items:       n,
		Interactive: durationFor(n, cfg.InteractiveRPS, 0),
		Batch:       durationFor(n, cfg.BatchRPS, cfg.BatchOverheadS),
		CostUSD:     costFor(cfg, n),
		Recommended: results.ModeInteractive,
	}
	if minBatch > 0 && n >= minBatch {
		est.Recommended = results.ModeBatch
	}
	return est
}

func durationFor(n int, rps, overheadSeconds float64) time.Duration {
	if n == 0 {
		return 0
	}
	seconds := overheadSeconds
	if rps > 0 {
		seconds += float64(n) / rps
	}
	return time.Duration(seconds * float64(time.Second))
}

func costFor(cfg config.Estimator, n int) float64 {
	perItem := cfg.CostPerItem
	if perItem <= 0 {
		perItem = cfg.InputTokens/1000*cfg.CostPer1KInput +
			cfg.OutputTokens/1000*cfg.CostPer1KOutput
	}
	return perItem * float64(n)
}
