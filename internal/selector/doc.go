// Package selector picks the catalog items a labeling run should touch.
//
// Selection is idempotent with respect to the result store: items already
// covered for the target provider are skipped, as are items whose last
// preflight attempt left them unresolvable. Force re-selection bypasses
// both exclusions. Ordering follows the catalog's import order so that
// repeated runs walk the backlog deterministically.
package selector
