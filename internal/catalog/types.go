package catalog

import (
	"context"
	"strings"
	"time"
)

// ImageKind selects which media reference of an item is sent to the labeling
// service.
type ImageKind string

const (
	KindThumb    ImageKind = "thumb"
	KindOriginal ImageKind = "original"
)

// Item is one catalog asset as seen by the orchestrator.
type Item struct {
	ID         string
	Source     string
	Title      string
	StoredPath string
	ThumbPath  string
	ImportedAt time.Time
}

// ImagePath returns the media reference for the requested kind, falling back
// to the other reference when the preferred one is absent. Empty when the item
// has no media reference at all.
func (it Item) ImagePath(kind ImageKind) string {
	preferred, fallback := it.StoredPath, it.ThumbPath
	if kind == KindThumb {
		preferred, fallback = it.ThumbPath, it.StoredPath
	}
	if strings.TrimSpace(preferred) != "" {
		return preferred
	}
	return strings.TrimSpace(fallback)
}

// MediaState classifies whether an item's media is usable for labeling.
type MediaState string

const (
	StateReady       MediaState = "ready"
	StateMissingFile MediaState = "missing_file"
	StateMissingPath MediaState = "missing_path"
	StateUnsupported MediaState = "unsupported"
)

// Lister enumerates catalog items for candidate selection.
type Lister interface {
	// ListItems returns items for a source ordered by import time then ID.
	// limit <= 0 means no limit.
	ListItems(ctx context.Context, source string, limit int) ([]Item, error)
}
