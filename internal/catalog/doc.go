// Package catalog exposes the read-only view of the asset catalog that the
// labeling orchestrator consumes.
//
// The orchestrator never owns catalog rows; it lists candidate items, resolves
// their media references, and classifies media readiness before spending a
// labeling attempt. A SQLite-backed Store is provided because the catalog and
// the result store share one database file, but orchestration code depends
// only on the Lister interface so tests can substitute fixtures.
package catalog
