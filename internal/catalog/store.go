package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store reads catalog items from the shared SQLite database.
//
// The items table is owned by the catalog/import layer; the orchestrator only
// reads it. EnsureSchema exists so a fresh database (tests, first run) has the
// table available before any import has happened.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the items table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS items (
            id TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            title TEXT,
            stored_path TEXT,
            thumb_path TEXT,
            imported_at TEXT NOT NULL
        )`)
	if err != nil {
		return fmt.Errorf("ensure items table: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_items_source_imported ON items(source, imported_at)")
	if err != nil {
		return fmt.Errorf("ensure items index: %w", err)
	}
	return nil
}

// ListItems returns items ordered by import time then ID. An empty source
// means all sources.
func (s *Store) ListItems(ctx context.Context, source string, limit int) ([]Item, error) {
	query := `
        SELECT id, source, COALESCE(title, ''), COALESCE(stored_path, ''), COALESCE(thumb_path, ''), imported_at
        FROM items`
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY imported_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Get returns a single item by ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, source, COALESCE(title, ''), COALESCE(stored_path, ''), COALESCE(thumb_path, ''), imported_at
        FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Add inserts an item. Used by import tooling and tests; the orchestrator
// itself never writes catalog rows.
func (s *Store) Add(ctx context.Context, item Item) error {
	importedAt := item.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO items (id, source, title, stored_path, thumb_path, imported_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Source,
		nullableString(item.Title),
		nullableString(item.StoredPath),
		nullableString(item.ThumbPath),
		importedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var importedAt string
	if err := row.Scan(&item.ID, &item.Source, &item.Title, &item.StoredPath, &item.ThumbPath, &importedAt); err != nil {
		if err == sql.ErrNoRows {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("scan item: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, importedAt); err == nil {
		item.ImportedAt = ts
	}
	return item, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
