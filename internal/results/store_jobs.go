package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBatchJob persists a freshly built (not yet submitted) batch job.
func (s *Store) CreateBatchJob(ctx context.Context, job BatchJob) (*BatchJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.State == "" {
		job.State = JobPending
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO batch_jobs (id, run_id, model, remote_name, input_path, map_path,
            input_file_id, output_file_id, output_path, request_count, input_bytes,
            state, detail, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		nullable(job.RunID),
		job.Model,
		nullable(job.RemoteName),
		job.InputPath,
		job.MapPath,
		nullable(job.InputFileID),
		nullable(job.OutputFileID),
		nullable(job.OutputPath),
		job.RequestCount,
		job.InputBytes,
		string(job.State),
		nullable(job.Detail),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch job: %w", err)
	}
	return &job, nil
}

// MarkSubmitted persists the remote job handle and uploaded file reference.
// This must happen before any polling so a crash cannot double-submit.
func (s *Store) MarkSubmitted(ctx context.Context, jobID, remoteName, inputFileID string) error {
	return s.updateJob(ctx, jobID, `
        UPDATE batch_jobs SET remote_name = ?, input_file_id = ?, state = ?, updated_at = ?
        WHERE id = ?`,
		remoteName, inputFileID, string(JobRunning), now(), jobID)
}

// SetJobState transitions the lifecycle state, optionally attaching detail.
func (s *Store) SetJobState(ctx context.Context, jobID string, state JobState, detail string) error {
	return s.updateJob(ctx, jobID, `
        UPDATE batch_jobs SET state = ?, detail = ?, updated_at = ?
        WHERE id = ?`,
		string(state), nullable(detail), now(), jobID)
}

// SetJobOutput records the remote output artifact and its local download path.
func (s *Store) SetJobOutput(ctx context.Context, jobID, outputFileID, outputPath string) error {
	return s.updateJob(ctx, jobID, `
        UPDATE batch_jobs SET output_file_id = ?, output_path = ?, updated_at = ?
        WHERE id = ?`,
		outputFileID, nullable(outputPath), now(), jobID)
}

func (s *Store) updateJob(ctx context.Context, jobID, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update batch job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch job %s: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update batch job %s: not found", jobID)
	}
	return nil
}

// GetBatchJob returns a job by ID, or nil when absent.
func (s *Store) GetBatchJob(ctx context.Context, jobID string) (*BatchJob, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL+" WHERE id = ?", jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// OpenBatchJobs returns jobs that still need pipeline work (not terminal),
// oldest first so resume processes them in submission order.
func (s *Store) OpenBatchJobs(ctx context.Context) ([]BatchJob, error) {
	rows, err := s.db.QueryContext(ctx,
		selectJobSQL+" WHERE state NOT IN (?, ?) ORDER BY created_at ASC",
		string(JobIngested), string(JobFailed))
	if err != nil {
		return nil, fmt.Errorf("list open batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch jobs: %w", err)
	}
	return jobs, nil
}

const selectJobSQL = `
    SELECT id, COALESCE(run_id, ''), model, COALESCE(remote_name, ''), input_path, map_path,
           COALESCE(input_file_id, ''), COALESCE(output_file_id, ''), COALESCE(output_path, ''),
           request_count, input_bytes, state, COALESCE(detail, ''), created_at, updated_at
    FROM batch_jobs`

func scanJob(row rowScanner) (*BatchJob, error) {
	var job BatchJob
	var state, createdAt, updatedAt string
	err := row.Scan(&job.ID, &job.RunID, &job.Model, &job.RemoteName, &job.InputPath, &job.MapPath,
		&job.InputFileID, &job.OutputFileID, &job.OutputPath,
		&job.RequestCount, &job.InputBytes, &state, &job.Detail, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch job: %w", err)
	}
	job.State = JobState(state)
	if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		job.CreatedAt = ts
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		job.UpdatedAt = ts
	}
	return &job, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
