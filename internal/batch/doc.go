// Package batch drives asynchronous bulk labeling through the provider's
// batch endpoints.
//
// The flow is build, submit, watch, ingest. Building serializes requests
// into JSONL input files under the batch directory, splitting when a file
// would exceed the configured byte cap, and records one job row per file.
// Submission uploads the input and creates the remote batch, persisting
// the remote handle before the first poll so a crash never orphans a
// submitted job. Watching polls until the remote batch reaches a terminal
// state. Ingestion downloads the responses file and writes labels through
// the same idempotent store path the interactive runner uses, so a result
// file can be ingested twice without duplicating rows.
package batch
