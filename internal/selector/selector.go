package selector

import (
	"context"
	"fmt"

	"tagpipe/internal/catalog"
	"tagpipe/internal/results"
)

// CoverageStore exposes the result-store lookups selection depends on.
type CoverageStore interface {
	CoveredItemIDs(ctx context.Context, provider string) (map[string]struct{}, error)
	UnresolvedItemIDs(ctx context.Context, provider string, kinds ...results.ErrorKind) (map[string]struct{}, error)
}

// Options narrows what Select considers.
type Options struct {
	// Source restricts selection to items imported from one source.
	Source string
	// Limit caps how many candidates are returned after exclusions.
	// Zero means unlimited.
	Limit int
	// Force ignores existing coverage and unresolved preflight marks,
	// re-selecting everything the catalog lists.
	Force bool
}

// Selection is the outcome of one candidate pass.
type Selection struct {
	Items             []catalog.Item
	TotalListed       int
	SkippedCovered    int
	SkippedUnresolved int
}

// Selector builds candidate lists from the catalog and result store.
type Selector struct {
	catalog  catalog.Lister
	coverage CoverageStore
	provider string
}

// New constructs a selector for the given provider.
func New(lister catalog.Lister, coverage CoverageStore, provider string) *Selector {
	return &Selector{catalog: lister, coverage: coverage, provider: provider}
}

// Select lists the catalog and filters it down to actionable candidates.
// The limit applies after exclusions so that a capped run always does new
// work instead of re-walking covered items.
func (s *Selector) Select(ctx context.Context, opts Options) (Selection, error) {
	var sel Selection

	items, err := s.catalog.ListItems(ctx, opts.Source, 0)
	if err != nil {
		return sel, fmt.Errorf("selector: list items: %w", err)
	}
	sel.TotalListed = len(items)

	covered := map[string]struct{}{}
	unresolved := map[string]struct{}{}
	if !opts.Force {
		covered, err = s.coverage.CoveredItemIDs(ctx, s.provider)
		if err != nil {
			return sel, fmt.Errorf("selector: load coverage: %w", err)
		}
		unresolved, err = s.coverage.UnresolvedItemIDs(ctx, s.provider, results.KindPreflightUnresolved)
		if err != nil {
			return sel, fmt.Errorf("selector: load unresolved: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		if _, ok := covered[item.ID]; ok {
			sel.SkippedCovered++
			continue
		}
		if _, ok := unresolved[item.ID]; ok {
			sel.SkippedUnresolved++
			continue
		}
		sel.Items = append(sel.Items, item)
		if opts.Limit > 0 && len(sel.Items) >= opts.Limit {
			break
		}
	}
	return sel, nil
}
