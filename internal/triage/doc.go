// Package triage turns recorded labeling errors into an actionable
// report. Errors are grouped by kind, each group mapped to a remedial
// action, and errors that a later successful label superseded are split
// out as historical so the report surfaces only what still needs a
// human. Rows persisted before kinds existed are classified from their
// diagnostic text.
package triage
