package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun records the beginning of an orchestration invocation.
func (s *Store) StartRun(ctx context.Context, mode RunMode, provider, model, fallbackModel string) (*Run, error) {
	run := &Run{
		ID:            uuid.NewString(),
		Mode:          mode,
		Provider:      provider,
		Model:         model,
		FallbackModel: fallbackModel,
		StartedAt:     time.Now().UTC(),
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO runs (id, mode, provider, model, fallback_model, started_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Mode),
		run.Provider,
		run.Model,
		nullable(run.FallbackModel),
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinalizeRun records aggregate counts and the end time exactly once.
func (s *Store) FinalizeRun(ctx context.Context, runID string, totals Totals) error {
	res, err := s.execWithRetry(ctx, `
        UPDATE runs
        SET candidates = ?, labeled = ?, fallback_labeled = ?, errored = ?, skipped = ?, finished_at = ?
        WHERE id = ? AND finished_at IS NULL`,
		totals.Candidates,
		totals.Labeled,
		totals.FallbackLabeled,
		totals.Errored,
		totals.Skipped,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize run %s: run missing or already finalized", runID)
	}
	return nil
}

// GetRun returns a run by ID, or nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, mode, provider, model, COALESCE(fallback_model, ''),
               candidates, labeled, fallback_labeled, errored, skipped,
               started_at, finished_at
        FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, mode, provider, model, COALESCE(fallback_model, ''),
               candidates, labeled, fallback_labeled, errored, skipped,
               started_at, finished_at
        FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var mode, startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&run.ID, &mode, &run.Provider, &run.Model, &run.FallbackModel,
		&run.Candidates, &run.Labeled, &run.FallbackLabeled, &run.Errored, &run.Skipped,
		&startedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Mode = RunMode(mode)
	if ts, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		run.StartedAt = ts
	}
	if finishedAt.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, finishedAt.String); parseErr == nil {
			run.FinishedAt = &ts
		}
	}
	return &run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
