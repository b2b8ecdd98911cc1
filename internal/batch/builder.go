package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tagpipe/internal/catalog"
	"tagpipe/internal/logging"
	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
)

// inputLine is one JSONL request line in a batch input file.
type inputLine struct {
	Key     string              `json:"key"`
	Request gemini.GenerateBody `json:"request"`
}

// mapLine records which item and image backed a request key, for audit
// and debugging of downloaded result files.
type mapLine struct {
	Key  string `json:"key"`
	Path string `json:"path"`
	MIME string `json:"mime"`
}

// Build serializes items into one or more batch input files and records
// a pending job row for each. Files split when adding another request
// would push them past the configured byte cap. Items whose image cannot
// be read are recorded as unresolved and skipped.
func (p *Pipeline) Build(ctx context.Context, runID string, items []catalog.Item) ([]results.BatchJob, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.batchDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch build: create batch dir: %w", err)
	}

	var (
		jobs    []results.BatchJob
		writer  *inputWriter
		stamp   = time.Now().UTC().Format("20060102-150405")
		skipped int
	)

	flush := func() error {
		if writer == nil || writer.count == 0 {
			return nil
		}
		job, err := writer.finish(ctx, p.store, runID, p.model)
		if err != nil {
			return err
		}
		jobs = append(jobs, *job)
		writer = nil
		return nil
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return jobs, err
		}
		path := item.ImagePath(p.kind)
		data, err := os.ReadFile(path)
		if err != nil {
			skipped++
			p.recordError(ctx, runID, item.ID, results.KindPreflightUnresolved,
				fmt.Sprintf("image unreadable at batch build: %v", err))
			continue
		}
		mime, ok := catalog.MIMEFromPath(path)
		if !ok {
			skipped++
			p.recordError(ctx, runID, item.ID, results.KindPreflightUnresolved,
				fmt.Sprintf("unsupported media type at batch build: %s", path))
			continue
		}
		line, err := json.Marshal(inputLine{
			Key:     item.ID,
			Request: gemini.NewGenerateBody(p.prompt, mime, data),
		})
		if err != nil {
			return jobs, fmt.Errorf("batch build: encode request for %s: %w", item.ID, err)
		}

		if writer != nil && p.maxBytes > 0 && writer.bytes+int64(len(line))+1 > p.maxBytes {
			if err := flush(); err != nil {
				return jobs, err
			}
		}
		if writer == nil {
			writer, err = newInputWriter(p.batchDir, stamp, len(jobs))
			if err != nil {
				return jobs, err
			}
		}
		if err := writer.add(line, mapLine{Key: item.ID, Path: path, MIME: mime}); err != nil {
			return jobs, err
		}
	}
	if err := flush(); err != nil {
		return jobs, err
	}

	p.logger.Info("batch input built",
		logging.String(logging.FieldRunID, runID),
		logging.Int("jobs", len(jobs)),
		logging.Int("items", len(items)-skipped),
		logging.Int("skipped", skipped))
	return jobs, nil
}

type inputWriter struct {
	inputPath string
	mapPath   string
	input     *os.File
	mapFile   *os.File
	inputBuf  *bufio.Writer
	mapBuf    *bufio.Writer
	count     int
	bytes     int64
}

func newInputWriter(dir, stamp string, index int) (*inputWriter, error) {
	base := fmt.Sprintf("batch-%s-%03d", stamp, index)
	w := &inputWriter{
		inputPath: filepath.Join(dir, base+".input.jsonl"),
		mapPath:   filepath.Join(dir, base+".map.jsonl"),
	}
	var err error
	if w.input, err = os.Create(w.inputPath); err != nil {
		return nil, fmt.Errorf("batch build: create input file: %w", err)
	}
	if w.mapFile, err = os.Create(w.mapPath); err != nil {
		w.input.Close()
		return nil, fmt.Errorf("batch build: create map file: %w", err)
	}
	w.inputBuf = bufio.NewWriter(w.input)
	w.mapBuf = bufio.NewWriter(w.mapFile)
	return w, nil
}

func (w *inputWriter) add(line []byte, entry mapLine) error {
	if _, err := w.inputBuf.Write(line); err != nil {
		return fmt.Errorf("batch build: write input line: %w", err)
	}
	if err := w.inputBuf.WriteByte('\n'); err != nil {
		return fmt.Errorf("batch build: write input line: %w", err)
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("batch build: encode map line: %w", err)
	}
	if _, err := w.mapBuf.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("batch build: write map line: %w", err)
	}
	w.count++
	w.bytes += int64(len(line)) + 1
	return nil
}

func (w *inputWriter) finish(ctx context.Context, store JobStore, runID, model string) (*results.BatchJob, error) {
	if err := w.inputBuf.Flush(); err != nil {
		return nil, fmt.Errorf("batch build: flush input: %w", err)
	}
	if err := w.mapBuf.Flush(); err != nil {
		return nil, fmt.Errorf("batch build: flush map: %w", err)
	}
	if err := w.input.Close(); err != nil {
		return nil, fmt.Errorf("batch build: close input: %w", err)
	}
	if err := w.mapFile.Close(); err != nil {
		return nil, fmt.Errorf("batch build: close map: %w", err)
	}
	job, err := store.CreateBatchJob(ctx, results.BatchJob{
		RunID:        runID,
		Model:        model,
		InputPath:    w.inputPath,
		MapPath:      w.mapPath,
		RequestCount: w.count,
		InputBytes:   w.bytes,
	})
	if err != nil {
		return nil, fmt.Errorf("batch build: record job: %w", err)
	}
	return job, nil
}
