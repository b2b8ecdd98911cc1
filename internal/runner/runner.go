package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tagpipe/internal/catalog"
	"tagpipe/internal/config"
	"tagpipe/internal/logging"
	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
)

// ErrStalled reports that the run aborted after consecutive chunks
// produced no labels at all.
var ErrStalled = errors.New("runner: no progress across consecutive chunks")

const stallChunkLimit = 3

// Generator is the synchronous labeling call the runner drives.
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (gemini.Generation, error)
}

// ResultStore persists labeling outcomes.
type ResultStore interface {
	WriteResult(ctx context.Context, result results.LabelResult) (bool, error)
	ForceResult(ctx context.Context, result results.LabelResult) error
	WriteError(ctx context.Context, labelErr results.LabelError) error
}

// Stats accumulates outcome counts for one run.
type Stats struct {
	Labeled         int
	FallbackLabeled int
	Errored         int
	Skipped         int
}

// Runner labels catalog items through a shared worker pool.
type Runner struct {
	client Generator
	store  ResultStore
	logger *slog.Logger

	model          string
	fallbackModel  string
	prompt         string
	kind           catalog.ImageKind
	workers        int
	chunkSize      int
	chunkTimeout   time.Duration
	requestTimeout time.Duration
	recordErrors   bool
	limiter        *rate.Limiter
}

// New builds a runner from configuration.
func New(cfg *config.Config, client Generator, store ResultStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Tagging.Workers
	if workers <= 0 {
		workers = 1
	}
	chunkSize := cfg.Tagging.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	rps := cfg.Tagging.RequestsPerSecond
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	requestTimeout := gemini.DefaultHTTPTimeout()
	if cfg.Gemini.TimeoutSeconds > 0 {
		requestTimeout = time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second
	}
	chunkTimeout := time.Duration(cfg.Tagging.ChunkTimeout) * time.Second

	return &Runner{
		client:         client,
		store:          store,
		logger:         logger.With(logging.String(logging.FieldComponent, "runner")),
		model:          cfg.Gemini.Model,
		fallbackModel:  cfg.Gemini.FallbackModel,
		prompt:         cfg.Gemini.Prompt,
		kind:           catalog.ImageKind(cfg.Tagging.ImageKind),
		workers:        workers,
		chunkSize:      chunkSize,
		chunkTimeout:   chunkTimeout,
		requestTimeout: requestTimeout,
		recordErrors:   cfg.Tagging.RecordErrors,
		limiter:        rate.NewLimiter(limit, workers),
	}
}

// Run labels items and returns accumulated stats. The returned error is
// ErrStalled when the run aborted for lack of progress, or the context
// error on cancellation; partial stats are valid either way.
func (r *Runner) Run(ctx context.Context, runID string, items []catalog.Item, force bool) (Stats, error) {
	var stats Stats
	if len(items) == 0 {
		return stats, nil
	}

	chunks := chunkItems(items, r.chunkSize)
	r.logger.Info("starting interactive run",
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldModel, r.model),
		logging.Int("items", len(items)),
		logging.Int("chunks", len(chunks)),
		logging.Int("workers", r.workers))

	start := time.Now()
	zeroStreak := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunkStats, err := r.runChunk(ctx, runID, chunk, force)
		stats.add(chunkStats)
		if err != nil {
			return stats, err
		}

		labeled := chunkStats.Labeled + chunkStats.FallbackLabeled
		if labeled == 0 && chunkStats.Skipped < len(chunk) {
			zeroStreak++
		} else {
			zeroStreak = 0
		}

		elapsed := time.Since(start)
		remaining := time.Duration(0)
		if i+1 < len(chunks) {
			remaining = elapsed / time.Duration(i+1) * time.Duration(len(chunks)-i-1)
		}
		r.logger.Info("chunk finished",
			logging.String(logging.FieldRunID, runID),
			logging.Int("chunk", i+1),
			logging.Int("chunks", len(chunks)),
			logging.Int("labeled", labeled),
			logging.Int("errored", chunkStats.Errored),
			logging.Duration("elapsed", elapsed.Round(time.Second)),
			logging.Duration("eta", remaining.Round(time.Second)))

		if zeroStreak >= stallChunkLimit {
			r.logger.Warn("aborting run after consecutive empty chunks",
				logging.String(logging.FieldRunID, runID),
				logging.Int("streak", zeroStreak))
			return stats, ErrStalled
		}
	}
	return stats, nil
}

func (r *Runner) runChunk(ctx context.Context, runID string, chunk []catalog.Item, force bool) (Stats, error) {
	chunkCtx := ctx
	if r.chunkTimeout > 0 {
		var cancel context.CancelFunc
		chunkCtx, cancel = context.WithTimeout(ctx, r.chunkTimeout)
		defer cancel()
	}

	jobs := make(chan catalog.Item)
	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
	)

	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				outcome := r.labelItem(chunkCtx, runID, item, force)
				mu.Lock()
				switch outcome {
				case outcomeLabeled:
					stats.Labeled++
				case outcomeFallback:
					stats.Labeled++
					stats.FallbackLabeled++
				case outcomeSkipped:
					stats.Skipped++
				case outcomeErrored:
					stats.Errored++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, item := range chunk {
		select {
		case jobs <- item:
		case <-chunkCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// A chunk deadline is not fatal to the run; whatever the deadline cut
	// off simply remains uncovered for the next run. Parent cancellation is.
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

type outcome int

const (
	outcomeLabeled outcome = iota
	outcomeFallback
	outcomeSkipped
	outcomeErrored
)

func (r *Runner) labelItem(ctx context.Context, runID string, item catalog.Item, force bool) outcome {
	if err := ctx.Err(); err != nil {
		return outcomeSkipped
	}

	path := item.ImagePath(r.kind)
	data, err := os.ReadFile(path)
	if err != nil {
		r.recordError(ctx, runID, item.ID, r.model, results.KindPreflightUnresolved,
			fmt.Sprintf("image unreadable at label time: %v", err))
		return outcomeErrored
	}
	mime, ok := catalog.MIMEFromPath(path)
	if !ok {
		r.recordError(ctx, runID, item.ID, r.model, results.KindPreflightUnresolved,
			fmt.Sprintf("unsupported media type at label time: %s", path))
		return outcomeErrored
	}

	payload, model, kind, diagnostic := r.generateWithFallback(ctx, item, mime, data)
	if payload == nil {
		if ctx.Err() != nil {
			return outcomeSkipped
		}
		r.recordError(ctx, runID, item.ID, model, kind, diagnostic)
		return outcomeErrored
	}

	result := results.LabelResult{
		ItemID:   item.ID,
		Provider: gemini.Provider,
		Model:    model,
		Payload:  string(payload),
		Summary:  summaryFrom(payload),
		RunID:    runID,
	}
	if force {
		if err := r.store.ForceResult(ctx, result); err != nil {
			r.logger.Error("write forced result failed",
				logging.String(logging.FieldItemID, item.ID), logging.Error(err))
			return outcomeErrored
		}
	} else {
		wrote, err := r.store.WriteResult(ctx, result)
		if err != nil {
			r.logger.Error("write result failed",
				logging.String(logging.FieldItemID, item.ID), logging.Error(err))
			return outcomeErrored
		}
		if !wrote {
			return outcomeSkipped
		}
	}
	if model == r.fallbackModel && r.fallbackModel != "" {
		return outcomeFallback
	}
	return outcomeLabeled
}

// generateWithFallback runs the primary model and escalates to the
// fallback model only on a recitation stop with no usable JSON. It
// returns the JSON payload and the model that produced it, or a nil
// payload with the error classification.
func (r *Runner) generateWithFallback(ctx context.Context, item catalog.Item, mime string, data []byte) (json.RawMessage, string, results.ErrorKind, string) {
	payload, kind, diagnostic, recited := r.generateOnce(ctx, r.model, item, mime, data)
	if payload != nil {
		return payload, r.model, "", ""
	}
	if !recited || r.fallbackModel == "" {
		return nil, r.model, kind, diagnostic
	}

	r.logger.Debug("escalating to fallback model",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldModel, r.fallbackModel))
	payload, fbKind, fbDiagnostic, _ := r.generateOnce(ctx, r.fallbackModel, item, mime, data)
	if payload != nil {
		return payload, r.fallbackModel, "", ""
	}
	return nil, r.fallbackModel, fbKind, "fallback after recitation: " + fbDiagnostic
}

func (r *Runner) generateOnce(ctx context.Context, model string, item catalog.Item, mime string, data []byte) (json.RawMessage, results.ErrorKind, string, bool) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, results.KindNetwork, err.Error(), false
	}

	reqCtx := ctx
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}

	gen, err := r.client.Generate(reqCtx, gemini.GenerateRequest{
		Model:     model,
		Prompt:    r.prompt,
		ImageMIME: mime,
		ImageData: data,
	})
	if err != nil {
		kind, diagnostic := classifyError(err)
		return nil, kind, diagnostic, false
	}

	payload, parseErr := gemini.ExtractJSONObject(gen.Text)
	if parseErr == nil {
		return payload, "", "", false
	}

	recited := gen.HasFinishReason(gemini.FinishReasonRecitation)
	if recited || gen.BlockReason != "" {
		return nil, results.KindContentBlock, gen.NoPayloadMessage(), recited
	}
	return nil, results.KindMalformedResponse, gen.NoPayloadMessage(), false
}

func classifyError(err error) (results.ErrorKind, string) {
	switch {
	case gemini.IsQuota(err):
		return results.KindQuota, err.Error()
	case gemini.IsNetworkError(err):
		return results.KindNetwork, err.Error()
	default:
		var statusErr *gemini.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 500 {
			return results.KindNetwork, err.Error()
		}
		return results.KindMalformedResponse, err.Error()
	}
}

func (r *Runner) recordError(ctx context.Context, runID, itemID, model string, kind results.ErrorKind, diagnostic string) {
	if !r.recordErrors {
		return
	}
	labelErr := results.LabelError{
		ItemID:     itemID,
		Provider:   gemini.Provider,
		Model:      model,
		Kind:       kind,
		Diagnostic: diagnostic,
		RunID:      runID,
	}
	if err := r.store.WriteError(ctx, labelErr); err != nil {
		r.logger.Error("record label error failed",
			logging.String(logging.FieldItemID, itemID), logging.Error(err))
	}
}

func summaryFrom(payload json.RawMessage) string {
	var probe struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.Summary
}

func chunkItems(items []catalog.Item, size int) [][]catalog.Item {
	var chunks [][]catalog.Item
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func (s *Stats) add(other Stats) {
	s.Labeled += other.Labeled
	s.FallbackLabeled += other.FallbackLabeled
	s.Errored += other.Errored
	s.Skipped += other.Skipped
}
