package catalog_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"tagpipe/internal/catalog"
)

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := catalog.NewStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return store
}

func TestListItemsOrdersByImportTime(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		err := store.Add(ctx, catalog.Item{
			ID:         id,
			Source:     "pinterest",
			ThumbPath:  "/tmp/" + id + ".jpg",
			ImportedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	items, err := store.ListItems(ctx, "pinterest", 0)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != "c" || items[1].ID != "a" || items[2].ID != "b" {
		t.Fatalf("unexpected order: %v %v %v", items[0].ID, items[1].ID, items[2].ID)
	}

	limited, err := store.ListItems(ctx, "pinterest", 2)
	if err != nil {
		t.Fatalf("ListItems with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 items with limit, got %d", len(limited))
	}
}

func TestListItemsFiltersSource(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, catalog.Item{ID: "p1", Source: "pinterest"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(ctx, catalog.Item{ID: "s1", Source: "scans"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := store.ListItems(ctx, "scans", 0)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "s1" {
		t.Fatalf("unexpected items: %#v", items)
	}

	// Empty source means all sources.
	all, err := store.ListItems(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 items across sources, got %d", len(all))
	}
}

func TestImagePathPrefersKindWithFallback(t *testing.T) {
	item := catalog.Item{StoredPath: "/orig/a.png", ThumbPath: "/thumb/a.jpg"}
	if got := item.ImagePath(catalog.KindThumb); got != "/thumb/a.jpg" {
		t.Fatalf("thumb path: got %q", got)
	}
	if got := item.ImagePath(catalog.KindOriginal); got != "/orig/a.png" {
		t.Fatalf("original path: got %q", got)
	}

	thumbOnly := catalog.Item{ThumbPath: "/thumb/b.jpg"}
	if got := thumbOnly.ImagePath(catalog.KindOriginal); got != "/thumb/b.jpg" {
		t.Fatalf("expected fallback to thumb, got %q", got)
	}

	empty := catalog.Item{}
	if got := empty.ImagePath(catalog.KindThumb); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}

func TestStateOfClassifiesMedia(t *testing.T) {
	dir := t.TempDir()
	ready := filepath.Join(dir, "ok.jpg")
	if err := os.WriteFile(ready, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	unsupported := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(unsupported, []byte("pdf"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name string
		item catalog.Item
		want catalog.MediaState
	}{
		{"ready", catalog.Item{ThumbPath: ready}, catalog.StateReady},
		{"missing path", catalog.Item{}, catalog.StateMissingPath},
		{"missing file", catalog.Item{ThumbPath: filepath.Join(dir, "gone.jpg")}, catalog.StateMissingFile},
		{"unsupported", catalog.Item{ThumbPath: unsupported}, catalog.StateUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := catalog.StateOf(tc.item, catalog.KindThumb); got != tc.want {
				t.Fatalf("StateOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestMIMEFromPath(t *testing.T) {
	if mime, ok := catalog.MIMEFromPath("/x/photo.JPG"); !ok || mime != "image/jpeg" {
		t.Fatalf("jpg: got %q ok=%v", mime, ok)
	}
	if _, ok := catalog.MIMEFromPath("/x/scan.tiff"); ok {
		t.Fatal("tiff should be unsupported")
	}
}
