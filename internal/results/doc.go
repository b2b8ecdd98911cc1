// Package results persists labeling outcomes in SQLite.
//
// It owns four tables: label_results (one covering label per item+provider),
// label_errors (append-only failure history), runs (one row per orchestration
// invocation), and batch_jobs (remote bulk job lifecycle). Results and errors
// are insert-only; the coverage invariant — at most one covering LabelResult
// per (item, provider) regardless of model — is enforced here so both the
// interactive runner and batch ingestion stay idempotent.
//
// If you add columns or states, update schema.sql and bump schemaVersion.
package results
