package results

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HasCoverage reports whether a covering LabelResult exists for the item under
// the provider, regardless of which model produced it.
func (s *Store) HasCoverage(ctx context.Context, itemID, provider string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM label_results WHERE item_id = ? AND provider = ?",
		itemID, provider,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check coverage: %w", err)
	}
	return count > 0, nil
}

// CoveredItemIDs returns the set of item IDs with coverage for the provider.
func (s *Store) CoveredItemIDs(ctx context.Context, provider string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT item_id FROM label_results WHERE provider = ?", provider)
	if err != nil {
		return nil, fmt.Errorf("list covered items: %w", err)
	}
	defer rows.Close()

	covered := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan covered item: %w", err)
		}
		covered[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate covered items: %w", err)
	}
	return covered, nil
}

// WriteResult inserts a LabelResult unless coverage already exists for the
// item+provider. Returns true when a row was written. The coverage check and
// insert run in one transaction so concurrent writers cannot double-write;
// the whole transaction retries when a sibling worker holds the write lock.
func (s *Store) WriteResult(ctx context.Context, result LabelResult) (bool, error) {
	if strings.TrimSpace(result.ItemID) == "" {
		return false, fmt.Errorf("write result: item id required")
	}
	var wrote bool
	err := retryOnBusy(ctx, func() error {
		var txErr error
		wrote, txErr = s.writeResultTx(ctx, result)
		return txErr
	})
	return wrote, err
}

func (s *Store) writeResultTx(ctx context.Context, result LabelResult) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin result tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM label_results WHERE item_id = ? AND provider = ?",
		result.ItemID, result.Provider,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check coverage: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	id := result.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO label_results (id, item_id, provider, model, summary, payload, run_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		result.ItemID,
		result.Provider,
		result.Model,
		nullable(result.Summary),
		result.Payload,
		nullable(result.RunID),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert result for %s: %w", result.ItemID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit result: %w", err)
	}
	return true, nil
}

// ForceResult inserts a LabelResult without a coverage check. Used by forced
// re-runs, which supersede prior coverage with a newer row.
func (s *Store) ForceResult(ctx context.Context, result LabelResult) error {
	id := result.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO label_results (id, item_id, provider, model, summary, payload, run_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, result.ItemID, result.Provider, result.Model,
		nullable(result.Summary), result.Payload, nullable(result.RunID),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert forced result for %s: %w", result.ItemID, err)
	}
	return nil
}

// WriteError appends a LabelError row. Diagnostics are truncated for storage.
func (s *Store) WriteError(ctx context.Context, lerr LabelError) error {
	if strings.TrimSpace(lerr.ItemID) == "" {
		return fmt.Errorf("write error: item id required")
	}
	id := lerr.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := lerr.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO label_errors (id, item_id, provider, model, kind, diagnostic, run_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		lerr.ItemID,
		lerr.Provider,
		lerr.Model,
		string(lerr.Kind),
		nullable(TruncateDiagnostic(lerr.Diagnostic)),
		nullable(lerr.RunID),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert error for %s: %w", lerr.ItemID, err)
	}
	return nil
}

// CountResults returns the number of label results stored for a provider.
func (s *Store) CountResults(ctx context.Context, provider string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM label_results WHERE provider = ?", provider,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}

// UnresolvedItemIDs returns item IDs that have a recorded error of the given
// kinds and no coverage. Candidate selection uses this to keep permanently
// unfixable items out of unforced runs.
func (s *Store) UnresolvedItemIDs(ctx context.Context, provider string, kinds ...ErrorKind) (map[string]struct{}, error) {
	if len(kinds) == 0 {
		return map[string]struct{}{}, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(kinds)), ",")
	query := fmt.Sprintf(`
        SELECT DISTINCT e.item_id
        FROM label_errors e
        WHERE e.provider = ? AND e.kind IN (%s)
          AND NOT EXISTS (
            SELECT 1 FROM label_results r
            WHERE r.item_id = e.item_id AND r.provider = e.provider
          )`, placeholders)

	args := make([]any, 0, len(kinds)+1)
	args = append(args, provider)
	for _, kind := range kinds {
		args = append(args, string(kind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unresolved items: %w", err)
	}
	defer rows.Close()

	unresolved := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unresolved item: %w", err)
		}
		unresolved[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unresolved items: %w", err)
	}
	return unresolved, nil
}

// TriagedError pairs a stored LabelError with whether a later LabelResult
// superseded it. Read-only; consumed by error triage.
type TriagedError struct {
	LabelError
	ResolvedAfter bool
}

// ErrorFilter narrows ListErrors output. Zero values mean "no filter".
type ErrorFilter struct {
	Provider string
	Model    string
	Since    time.Time
	Limit    int
}

// ListErrors returns stored errors newest-first together with resolution
// state (a LabelResult for the same item+provider created after the error).
func (s *Store) ListErrors(ctx context.Context, filter ErrorFilter) ([]TriagedError, error) {
	query := `
        SELECT e.id, e.item_id, e.provider, e.model, e.kind, COALESCE(e.diagnostic, ''),
               COALESCE(e.run_id, ''), e.created_at,
               EXISTS (
                 SELECT 1 FROM label_results r
                 WHERE r.item_id = e.item_id AND r.provider = e.provider
                   AND r.created_at >= e.created_at
               ) AS resolved_after
        FROM label_errors e
        WHERE 1=1`
	var args []any
	if filter.Provider != "" {
		query += " AND e.provider = ?"
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		query += " AND e.model = ?"
		args = append(args, filter.Model)
	}
	if !filter.Since.IsZero() {
		query += " AND e.created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY e.created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var out []TriagedError
	for rows.Next() {
		var te TriagedError
		var kind, createdAt string
		var resolved int
		if err := rows.Scan(&te.ID, &te.ItemID, &te.Provider, &te.Model, &kind,
			&te.Diagnostic, &te.RunID, &createdAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		te.Kind = ErrorKind(kind)
		if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			te.CreatedAt = ts
		}
		te.ResolvedAfter = resolved == 1
		out = append(out, te)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error rows: %w", err)
	}
	return out, nil
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
