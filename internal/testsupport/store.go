package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tagpipe/internal/catalog"
	"tagpipe/internal/config"
	"tagpipe/internal/results"
)

// MustOpenStore opens a results.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *results.Store {
	t.Helper()

	store, err := results.Open(cfg)
	if err != nil {
		t.Fatalf("results.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCatalog wraps the results database with a catalog store and ensures
// the items table exists.
func MustOpenCatalog(t testing.TB, store *results.Store) *catalog.Store {
	t.Helper()

	cat := catalog.NewStore(store.DB())
	if err := cat.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("catalog.EnsureSchema: %v", err)
	}
	return cat
}

// SeedItem inserts a catalog item backed by a real thumbnail file under dir
// and returns it. The file carries a supported image extension.
func SeedItem(t testing.TB, cat *catalog.Store, dir, id, source string, importedAt time.Time) catalog.Item {
	t.Helper()

	thumb := filepath.Join(dir, id+".jpg")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(thumb, []byte("image-bytes-"+id), 0o644); err != nil {
		t.Fatalf("write thumb: %v", err)
	}
	item := catalog.Item{
		ID:         id,
		Source:     source,
		ThumbPath:  thumb,
		ImportedAt: importedAt,
	}
	if err := cat.Add(context.Background(), item); err != nil {
		t.Fatalf("catalog.Add: %v", err)
	}
	return item
}
