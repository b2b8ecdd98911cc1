// Package pipeline wires selection, preflight, estimation, and the two
// execution paths into complete labeling runs.
//
// A run holds an exclusive file lock for its duration so concurrent
// invocations cannot race on the shared store. Every run, including ones
// that abort, finalizes its run record and returns a summary; callers
// decide how to render it.
package pipeline
