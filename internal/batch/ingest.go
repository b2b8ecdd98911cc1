package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"tagpipe/internal/fileutil"
	"tagpipe/internal/logging"
	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
)

// IngestStats counts the outcomes of one ingestion pass.
type IngestStats struct {
	Ingested int
	Skipped  int
	Failed   int
}

func (s *IngestStats) add(other IngestStats) {
	s.Ingested += other.Ingested
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// outputLine is one JSONL line of a downloaded responses file.
type outputLine struct {
	Key      string          `json:"key"`
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Ingest downloads a succeeded job's responses file if needed and writes
// every labeled item through the coverage-checked store path. Ingestion
// is idempotent: already-covered items count as skipped, and re-running
// after a partial ingest only fills the gaps.
func (p *Pipeline) Ingest(ctx context.Context, job *results.BatchJob) (IngestStats, error) {
	var stats IngestStats
	if job == nil {
		return stats, errors.New("batch ingest: nil job")
	}
	if job.State == results.JobFailed {
		return stats, fmt.Errorf("batch ingest: job %s failed, nothing to ingest", job.ID)
	}
	if job.OutputPath == "" {
		return stats, fmt.Errorf("batch ingest: job %s has no output recorded", job.ID)
	}

	if _, err := os.Stat(job.OutputPath); err != nil {
		if job.OutputFileID == "" {
			return stats, fmt.Errorf("batch ingest: job %s output missing and no remote file known", job.ID)
		}
		if err := p.download(ctx, job); err != nil {
			return stats, err
		}
	}

	file, err := os.Open(job.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("batch ingest: open output: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.ingestLine(ctx, job, lineNo, line, &stats)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("batch ingest: read output: %w", err)
	}

	// Per-item failures are recorded individually; the job only counts as
	// failed when nothing at all came out of it.
	state := results.JobIngested
	if stats.Failed > 0 && stats.Ingested == 0 && stats.Skipped == 0 {
		state = results.JobFailed
	}
	detail := fmt.Sprintf("ingested=%d skipped=%d failed=%d", stats.Ingested, stats.Skipped, stats.Failed)
	if err := p.store.SetJobState(ctx, job.ID, state, detail); err != nil {
		return stats, fmt.Errorf("batch ingest: record state: %w", err)
	}
	job.State = state

	p.logger.Info("batch ingested",
		logging.String(logging.FieldBatchJob, job.ID),
		logging.Int("ingested", stats.Ingested),
		logging.Int("skipped", stats.Skipped),
		logging.Int("failed", stats.Failed))
	return stats, nil
}

func (p *Pipeline) ingestLine(ctx context.Context, job *results.BatchJob, lineNo int, line string, stats *IngestStats) {
	var parsed outputLine
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		stats.Failed++
		p.recordError(ctx, job.RunID, fmt.Sprintf("%s#line%d", job.ID, lineNo),
			results.KindIngestParseFailure,
			fmt.Sprintf("undecodable output line %d: %v", lineNo, err))
		return
	}
	if parsed.Key == "" {
		stats.Failed++
		p.recordError(ctx, job.RunID, fmt.Sprintf("%s#line%d", job.ID, lineNo),
			results.KindIngestParseFailure,
			fmt.Sprintf("output line %d missing key", lineNo))
		return
	}
	if parsed.Error != nil {
		stats.Failed++
		p.recordError(ctx, job.RunID, parsed.Key, results.KindMalformedResponse,
			fmt.Sprintf("batch item error %d: %s", parsed.Error.Code, parsed.Error.Message))
		return
	}

	gen, err := gemini.ParseGenerateResponse(parsed.Response)
	if err != nil {
		stats.Failed++
		p.recordError(ctx, job.RunID, parsed.Key, results.KindIngestParseFailure,
			fmt.Sprintf("response envelope: %v", err))
		return
	}
	payload, err := gemini.ExtractJSONObject(gen.Text)
	if err != nil {
		stats.Failed++
		kind := results.KindMalformedResponse
		if gen.HasFinishReason(gemini.FinishReasonRecitation) || gen.BlockReason != "" {
			kind = results.KindContentBlock
		}
		p.recordError(ctx, job.RunID, parsed.Key, kind, gen.NoPayloadMessage())
		return
	}

	wrote, err := p.store.WriteResult(ctx, results.LabelResult{
		ItemID:   parsed.Key,
		Provider: gemini.Provider,
		Model:    job.Model,
		Payload:  string(payload),
		Summary:  summaryFrom(payload),
		RunID:    job.RunID,
	})
	if err != nil {
		stats.Failed++
		p.logger.Error("write batch result failed",
			logging.String(logging.FieldItemID, parsed.Key), logging.Error(err))
		return
	}
	if wrote {
		stats.Ingested++
	} else {
		stats.Skipped++
	}
}

func (p *Pipeline) download(ctx context.Context, job *results.BatchJob) error {
	err := fileutil.AtomicWrite(job.OutputPath, func(w io.Writer) error {
		return p.api.DownloadFile(ctx, job.OutputFileID, w)
	})
	if err != nil {
		return fmt.Errorf("batch ingest: download %s: %w", job.OutputFileID, err)
	}
	p.logger.Info("batch output downloaded",
		logging.String(logging.FieldBatchJob, job.ID),
		logging.String("path", job.OutputPath))
	return nil
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
