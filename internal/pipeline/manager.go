package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"tagpipe/internal/batch"
	"tagpipe/internal/catalog"
	"tagpipe/internal/config"
	"tagpipe/internal/estimate"
	"tagpipe/internal/logging"
	"tagpipe/internal/preflight"
	"tagpipe/internal/repair"
	"tagpipe/internal/results"
	"tagpipe/internal/runner"
	"tagpipe/internal/selector"
	"tagpipe/internal/services/gemini"
)

// ErrLocked reports that another invocation already holds the run lock.
var ErrLocked = errors.New("pipeline: another run is in progress")

// Mode selects how a run executes. ModeAuto defers to the estimator.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeInteractive Mode = Mode(results.ModeInteractive)
	ModeBatch       Mode = Mode(results.ModeBatch)
)

// Client is the provider surface a run needs: synchronous generation for
// the interactive path and the batch endpoints for the asynchronous one.
type Client interface {
	runner.Generator
	batch.API
}

// RunOptions shape one labeling run.
type RunOptions struct {
	Mode   Mode
	Source string
	Limit  int
	Force  bool
}

// Summary is the complete account of a run, valid even when the run
// ended early.
type Summary struct {
	RunID      string
	Mode       results.RunMode
	Selection  selector.Selection
	Preflight  preflight.Report
	Estimate   estimate.Estimate
	Stats      runner.Stats
	Ingest     batch.IngestStats
	BatchJobs  int
	Aborted    bool
	AbortCause string
}

// Manager owns the run lifecycle.
type Manager struct {
	cfg    *config.Config
	store  *results.Store
	cat    *catalog.Store
	client Client
	logger *slog.Logger
	lock   *flock.Flock

	batchOpts []batch.Option
}

// ManagerOption configures optional manager behavior.
type ManagerOption func(*Manager)

// WithBatchOptions forwards options to the batch pipeline (tests use
// this to replace the poll sleeper).
func WithBatchOptions(opts ...batch.Option) ManagerOption {
	return func(m *Manager) {
		m.batchOpts = append(m.batchOpts, opts...)
	}
}

// NewManager constructs a manager over an open store and catalog.
func NewManager(cfg *config.Config, store *results.Store, cat *catalog.Store, client Client, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		cat:    cat,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "pipeline")),
		lock:   flock.New(filepath.Join(cfg.Paths.LogDir, "tagpipe.lock")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Estimate selects candidates and projects both modes without touching
// the store beyond reads. It is the read-only half of Run.
func (m *Manager) Estimate(ctx context.Context, opts RunOptions) (selector.Selection, estimate.Estimate, error) {
	sel, err := selector.New(m.cat, m.store, gemini.Provider).Select(ctx, selector.Options{
		Source: m.sourceFor(opts),
		Limit:  opts.Limit,
		Force:  opts.Force,
	})
	if err != nil {
		return sel, estimate.Estimate{}, err
	}
	est := estimate.Plan(m.cfg.Estimator, m.cfg.Tagging.MinBatch, len(sel.Items))
	return sel, est, nil
}

// Run executes one full labeling run: select, preflight, estimate,
// execute, finalize. The returned summary is always populated.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	var summary Summary

	acquired, err := m.lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("pipeline: acquire lock: %w", err)
	}
	if !acquired {
		return summary, ErrLocked
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	sel, err := selector.New(m.cat, m.store, gemini.Provider).Select(ctx, selector.Options{
		Source: m.sourceFor(opts),
		Limit:  opts.Limit,
		Force:  opts.Force,
	})
	if err != nil {
		return summary, err
	}
	summary.Selection = sel
	if len(sel.Items) == 0 {
		m.logger.Info("nothing to label",
			logging.Int("listed", sel.TotalListed),
			logging.Int("covered", sel.SkippedCovered))
		return summary, nil
	}

	gate := preflight.New(m.imageKind(), gemini.Provider,
		repair.NewCommandRunner(m.cfg.Repair, m.logger), m.store, m.logger)
	report, err := gate.Run(ctx, sel.Items)
	if err != nil {
		return summary, err
	}
	summary.Preflight = report
	if len(report.Ready) == 0 {
		summary.Aborted = true
		summary.AbortCause = "no candidates passed preflight"
		m.logger.Warn("aborting run", logging.String("cause", summary.AbortCause))
		return summary, nil
	}

	summary.Estimate = estimate.Plan(m.cfg.Estimator, m.cfg.Tagging.MinBatch, len(report.Ready))
	mode := resolveMode(opts.Mode, summary.Estimate)
	summary.Mode = mode

	run, err := m.store.StartRun(ctx, mode, gemini.Provider, m.cfg.Gemini.Model, m.cfg.Gemini.FallbackModel)
	if err != nil {
		return summary, err
	}
	summary.RunID = run.ID
	m.logger.Info("run started",
		logging.String(logging.FieldRunID, run.ID),
		logging.String("mode", string(mode)),
		logging.Int("candidates", len(report.Ready)))

	var runErr error
	switch mode {
	case results.ModeBatch:
		runErr = m.runBatch(ctx, run.ID, report.Ready, &summary)
	default:
		runErr = m.runInteractive(ctx, run.ID, report.Ready, opts.Force, &summary)
	}
	if runErr != nil {
		summary.Aborted = true
		summary.AbortCause = runErr.Error()
	}

	totals := results.Totals{
		Candidates:      len(report.Ready),
		Labeled:         summary.Stats.Labeled + summary.Ingest.Ingested,
		FallbackLabeled: summary.Stats.FallbackLabeled,
		Errored:         summary.Stats.Errored + summary.Ingest.Failed,
		Skipped:         summary.Stats.Skipped + summary.Ingest.Skipped + len(report.Unresolved),
	}
	// Finalize even when the run aborted so the record reflects what
	// actually happened before the stop.
	if err := m.store.FinalizeRun(context.WithoutCancel(ctx), run.ID, totals); err != nil {
		m.logger.Error("finalize run failed",
			logging.String(logging.FieldRunID, run.ID), logging.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	m.logger.Info("run finished",
		logging.String(logging.FieldRunID, run.ID),
		logging.Int("labeled", totals.Labeled),
		logging.Int("errored", totals.Errored),
		logging.Int("skipped", totals.Skipped),
		logging.Bool("aborted", summary.Aborted))
	return summary, runErr
}

func (m *Manager) runInteractive(ctx context.Context, runID string, items []catalog.Item, force bool, summary *Summary) error {
	r := runner.New(m.cfg, m.client, m.store, m.logger)
	stats, err := r.Run(ctx, runID, items, force)
	summary.Stats = stats
	return err
}

func (m *Manager) runBatch(ctx context.Context, runID string, items []catalog.Item, summary *Summary) error {
	p := batch.New(m.cfg, m.client, m.store, m.logger, m.batchOpts...)
	jobs, err := p.Build(ctx, runID, items)
	summary.BatchJobs = len(jobs)
	if err != nil {
		return err
	}
	for i := range jobs {
		stats, err := p.Process(ctx, &jobs[i])
		summary.Ingest.Ingested += stats.Ingested
		summary.Ingest.Skipped += stats.Skipped
		summary.Ingest.Failed += stats.Failed
		if err != nil {
			return err
		}
	}
	return nil
}

// SubmitBatch runs the front half of a batch run: select, preflight,
// build the input files, and submit them, without waiting for remote
// completion. The run record is finalized immediately with build-phase
// totals; per-item outcomes land later via the run_id carried on each
// label row when the jobs are watched and ingested.
func (m *Manager) SubmitBatch(ctx context.Context, opts RunOptions) (Summary, error) {
	var summary Summary
	summary.Mode = results.ModeBatch

	acquired, err := m.lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("pipeline: acquire lock: %w", err)
	}
	if !acquired {
		return summary, ErrLocked
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	sel, err := selector.New(m.cat, m.store, gemini.Provider).Select(ctx, selector.Options{
		Source: m.sourceFor(opts),
		Limit:  opts.Limit,
		Force:  opts.Force,
	})
	if err != nil {
		return summary, err
	}
	summary.Selection = sel
	if len(sel.Items) == 0 {
		return summary, nil
	}

	gate := preflight.New(m.imageKind(), gemini.Provider,
		repair.NewCommandRunner(m.cfg.Repair, m.logger), m.store, m.logger)
	report, err := gate.Run(ctx, sel.Items)
	if err != nil {
		return summary, err
	}
	summary.Preflight = report
	if len(report.Ready) == 0 {
		summary.Aborted = true
		summary.AbortCause = "no candidates passed preflight"
		return summary, nil
	}

	run, err := m.store.StartRun(ctx, results.ModeBatch, gemini.Provider, m.cfg.Gemini.Model, m.cfg.Gemini.FallbackModel)
	if err != nil {
		return summary, err
	}
	summary.RunID = run.ID

	p := batch.New(m.cfg, m.client, m.store, m.logger, m.batchOpts...)
	jobs, buildErr := p.Build(ctx, run.ID, report.Ready)
	summary.BatchJobs = len(jobs)

	submitted := 0
	var submitErr error
	if buildErr == nil {
		for i := range jobs {
			if err := p.Submit(ctx, &jobs[i]); err != nil {
				submitErr = err
				break
			}
			submitted += jobs[i].RequestCount
		}
	}

	totals := results.Totals{
		Candidates: len(report.Ready),
		Errored:    len(report.Ready) - submitted,
		Skipped:    len(report.Unresolved),
	}
	if err := m.store.FinalizeRun(context.WithoutCancel(ctx), run.ID, totals); err != nil {
		m.logger.Error("finalize run failed",
			logging.String(logging.FieldRunID, run.ID), logging.Error(err))
	}

	if buildErr != nil {
		summary.Aborted = true
		summary.AbortCause = buildErr.Error()
		return summary, buildErr
	}
	if submitErr != nil {
		summary.Aborted = true
		summary.AbortCause = submitErr.Error()
		return summary, submitErr
	}
	m.logger.Info("batch jobs submitted",
		logging.String(logging.FieldRunID, run.ID),
		logging.Int("jobs", len(jobs)),
		logging.Int("requests", submitted))
	return summary, nil
}

// ResumeBatches picks up every open batch job under the run lock.
func (m *Manager) ResumeBatches(ctx context.Context) (batch.IngestStats, error) {
	var stats batch.IngestStats
	acquired, err := m.lock.TryLock()
	if err != nil {
		return stats, fmt.Errorf("pipeline: acquire lock: %w", err)
	}
	if !acquired {
		return stats, ErrLocked
	}
	defer m.lock.Unlock()

	p := batch.New(m.cfg, m.client, m.store, m.logger, m.batchOpts...)
	return p.ProcessOpen(ctx)
}

// Batch exposes a configured batch pipeline for the step-by-step CLI
// commands (submit, watch, ingest) that operate on single jobs.
func (m *Manager) Batch() *batch.Pipeline {
	return batch.New(m.cfg, m.client, m.store, m.logger, m.batchOpts...)
}

// sourceFor prefers an explicit per-invocation source over the configured
// default; an empty configured source means every source qualifies.
func (m *Manager) sourceFor(opts RunOptions) string {
	if opts.Source != "" {
		return opts.Source
	}
	return m.cfg.Tagging.Source
}

func (m *Manager) imageKind() catalog.ImageKind {
	return catalog.ImageKind(m.cfg.Tagging.ImageKind)
}

func resolveMode(requested Mode, est estimate.Estimate) results.RunMode {
	switch requested {
	case ModeInteractive:
		return results.ModeInteractive
	case ModeBatch:
		return results.ModeBatch
	default:
		return est.Recommended
	}
}
