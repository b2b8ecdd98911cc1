// Package runner executes interactive labeling over a fixed worker pool.
//
// Candidates are processed in chunks. Within a chunk, workers share one
// rate limiter so the pool's aggregate request rate stays under the
// configured ceiling regardless of worker count. Each item gets one
// primary-model attempt and, when the model aborts on recitation without
// producing JSON, one fallback-model attempt. Outcomes are written to the
// result store as they happen, so an interrupted run loses nothing that
// already completed.
//
// The runner watches for stalls: three consecutive chunks that label
// nothing abort the run, on the theory that a dead network or exhausted
// quota will not fix itself mid-run.
package runner
