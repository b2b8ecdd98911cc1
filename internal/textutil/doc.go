// Package textutil bounds and flattens free-form text before it lands in
// the database or a log line: stored diagnostics are byte-capped, and
// snippets of model output are collapsed to a single line.
package textutil
