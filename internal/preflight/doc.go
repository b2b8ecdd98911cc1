// Package preflight verifies media readiness before a labeling run.
//
// The gate classifies every candidate's image file, hands the broken
// ones to the repair command when one is configured, and rechecks. Items
// that still cannot be read are recorded as unresolved in the result
// store so later selections skip them instead of re-failing; the run
// proceeds with whatever passed.
package preflight
