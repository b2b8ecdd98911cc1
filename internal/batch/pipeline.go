package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"tagpipe/internal/catalog"
	"tagpipe/internal/config"
	"tagpipe/internal/logging"
	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
)

// ErrWaitExceeded reports that a watched batch outlived the configured
// wait ceiling. The job stays open and a later watch resumes polling.
var ErrWaitExceeded = errors.New("batch: wait ceiling exceeded")

const (
	defaultPollInterval = 30 * time.Second
	inputMIMEType       = "application/jsonl"
)

// API is the slice of the provider client the pipeline drives.
type API interface {
	Upload(ctx context.Context, path, displayName, mimeType string) (gemini.FileInfo, error)
	CreateBatch(ctx context.Context, model, inputFileName, displayName string) (string, error)
	GetBatch(ctx context.Context, name string) (gemini.BatchStatus, error)
	DownloadFile(ctx context.Context, fileName string, dst io.Writer) error
}

// JobStore persists batch jobs and labeling outcomes.
type JobStore interface {
	CreateBatchJob(ctx context.Context, job results.BatchJob) (*results.BatchJob, error)
	MarkSubmitted(ctx context.Context, jobID, remoteName, inputFileID string) error
	SetJobState(ctx context.Context, jobID string, state results.JobState, detail string) error
	SetJobOutput(ctx context.Context, jobID, outputFileID, outputPath string) error
	GetBatchJob(ctx context.Context, jobID string) (*results.BatchJob, error)
	OpenBatchJobs(ctx context.Context) ([]results.BatchJob, error)
	WriteResult(ctx context.Context, result results.LabelResult) (bool, error)
	WriteError(ctx context.Context, labelErr results.LabelError) error
}

// Pipeline owns the build/submit/watch/ingest lifecycle.
type Pipeline struct {
	api    API
	store  JobStore
	logger *slog.Logger

	batchDir     string
	model        string
	prompt       string
	kind         catalog.ImageKind
	maxBytes     int64
	pollInterval time.Duration
	maxWait      time.Duration
	recordErrors bool
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New builds a pipeline from configuration.
func New(cfg *config.Config, api API, store JobStore, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := defaultPollInterval
	if cfg.Batch.PollInterval > 0 {
		pollInterval = time.Duration(cfg.Batch.PollInterval) * time.Second
	}
	var maxWait time.Duration
	if cfg.Batch.MaxWait > 0 {
		maxWait = time.Duration(cfg.Batch.MaxWait) * time.Second
	}
	p := &Pipeline{
		api:          api,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "batch")),
		batchDir:     cfg.Paths.BatchDir,
		model:        cfg.Gemini.Model,
		prompt:       cfg.Gemini.Prompt,
		kind:         catalog.ImageKind(cfg.Tagging.ImageKind),
		maxBytes:     cfg.Batch.MaxBytes,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		recordErrors: cfg.Tagging.RecordErrors,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit uploads a built job's input file and creates the remote batch.
// The remote handle is persisted before returning, so polling can resume
// after a crash between submission and the first status check.
func (p *Pipeline) Submit(ctx context.Context, job *results.BatchJob) error {
	if job == nil {
		return errors.New("batch submit: nil job")
	}
	if job.Submitted() {
		return nil
	}
	displayName := filepath.Base(job.InputPath)

	info, err := p.api.Upload(ctx, job.InputPath, displayName, inputMIMEType)
	if err != nil {
		return fmt.Errorf("batch submit: upload input: %w", err)
	}
	remoteName, err := p.api.CreateBatch(ctx, job.Model, info.Name, displayName)
	if err != nil {
		return fmt.Errorf("batch submit: create batch: %w", err)
	}
	if err := p.store.MarkSubmitted(ctx, job.ID, remoteName, info.Name); err != nil {
		return fmt.Errorf("batch submit: record submission: %w", err)
	}
	job.RemoteName = remoteName
	job.InputFileID = info.Name
	job.State = results.JobRunning

	p.logger.Info("batch submitted",
		logging.String(logging.FieldBatchJob, job.ID),
		logging.String("remote", remoteName),
		logging.Int("requests", job.RequestCount))
	return nil
}

// Watch polls the remote batch until it reaches a terminal state, the
// wait ceiling passes, or ctx is cancelled. On success the responses
// file handle is persisted alongside the succeeded state.
func (p *Pipeline) Watch(ctx context.Context, job *results.BatchJob) error {
	if job == nil || !job.Submitted() {
		return errors.New("batch watch: job not submitted")
	}
	deadline := time.Time{}
	if p.maxWait > 0 {
		deadline = time.Now().Add(p.maxWait)
	}

	for {
		status, err := p.api.GetBatch(ctx, job.RemoteName)
		if err != nil {
			return fmt.Errorf("batch watch: poll %s: %w", job.RemoteName, err)
		}
		detail := fmt.Sprintf("state=%s total=%d done=%d failed=%d",
			status.State, status.Stats.Total, status.Stats.Succeeded, status.Stats.Failed)
		p.logger.Info("batch status",
			logging.String(logging.FieldBatchJob, job.ID),
			logging.String("detail", detail))

		if gemini.BatchTerminal(status.State) {
			if status.State == gemini.BatchStateSucceeded {
				outputPath := outputPathFor(job.InputPath)
				if err := p.store.SetJobOutput(ctx, job.ID, status.ResponsesFile, outputPath); err != nil {
					return fmt.Errorf("batch watch: record output: %w", err)
				}
				if err := p.store.SetJobState(ctx, job.ID, results.JobSucceeded, detail); err != nil {
					return fmt.Errorf("batch watch: record state: %w", err)
				}
				job.OutputFileID = status.ResponsesFile
				job.OutputPath = outputPath
				job.State = results.JobSucceeded
				return nil
			}
			if err := p.store.SetJobState(ctx, job.ID, results.JobFailed, detail); err != nil {
				return fmt.Errorf("batch watch: record state: %w", err)
			}
			job.State = results.JobFailed
			return fmt.Errorf("batch watch: remote batch ended %s", status.State)
		}

		if err := p.store.SetJobState(ctx, job.ID, results.JobRunning, detail); err != nil {
			return fmt.Errorf("batch watch: record state: %w", err)
		}
		job.State = results.JobRunning

		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrWaitExceeded
		}
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return err
		}
	}
}

// ProcessOpen resumes every non-terminal job: unsubmitted jobs are
// submitted, running jobs are watched, and succeeded jobs are ingested.
func (p *Pipeline) ProcessOpen(ctx context.Context) (IngestStats, error) {
	var total IngestStats
	jobs, err := p.store.OpenBatchJobs(ctx)
	if err != nil {
		return total, fmt.Errorf("batch resume: list open jobs: %w", err)
	}
	for i := range jobs {
		job := &jobs[i]
		stats, err := p.Process(ctx, job)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Process takes one job through submission, polling, and ingestion from
// whatever state it is currently in.
func (p *Pipeline) Process(ctx context.Context, job *results.BatchJob) (IngestStats, error) {
	var stats IngestStats
	if job.Terminal() {
		return stats, nil
	}
	if !job.Submitted() {
		if err := p.Submit(ctx, job); err != nil {
			return stats, err
		}
	}
	if job.State != results.JobSucceeded {
		if err := p.Watch(ctx, job); err != nil {
			return stats, err
		}
	}
	return p.Ingest(ctx, job)
}

func (p *Pipeline) recordError(ctx context.Context, runID, itemID string, kind results.ErrorKind, diagnostic string) {
	if !p.recordErrors {
		return
	}
	labelErr := results.LabelError{
		ItemID:     itemID,
		Provider:   gemini.Provider,
		Model:      p.model,
		Kind:       kind,
		Diagnostic: diagnostic,
		RunID:      runID,
	}
	if err := p.store.WriteError(ctx, labelErr); err != nil {
		p.logger.Error("record batch error failed",
			logging.String(logging.FieldItemID, itemID), logging.Error(err))
	}
}

func outputPathFor(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	const suffix = ".input.jsonl"
	if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
		base = base[:len(base)-len(suffix)]
	}
	return filepath.Join(dir, base+".output.jsonl")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
