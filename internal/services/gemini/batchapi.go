package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Batch states reported by the Batches endpoint.
const (
	BatchStatePending   = "BATCH_STATE_PENDING"
	BatchStateRunning   = "BATCH_STATE_RUNNING"
	BatchStateSucceeded = "BATCH_STATE_SUCCEEDED"
	BatchStateFailed    = "BATCH_STATE_FAILED"
	BatchStateCancelled = "BATCH_STATE_CANCELLED"
	BatchStateExpired   = "BATCH_STATE_EXPIRED"
)

// BatchTerminal reports whether state will never change again.
func BatchTerminal(state string) bool {
	switch state {
	case BatchStateSucceeded, BatchStateFailed, BatchStateCancelled, BatchStateExpired:
		return true
	}
	return false
}

// FileInfo identifies an uploaded or generated remote file.
type FileInfo struct {
	Name string
	URI  string
}

// BatchStats are the request counters the API reports while a batch runs.
type BatchStats struct {
	Total     int64
	Succeeded int64
	Failed    int64
}

// BatchStatus is one observation of a remote batch.
type BatchStatus struct {
	Name          string
	State         string
	ResponsesFile string
	Stats         BatchStats
	Raw           []byte
}

// Upload pushes a local file through the resumable upload protocol and
// returns the remote file handle. The two-step dance (start, then upload
// and finalize against the session URL) is required by the Files API for
// anything beyond trivial payloads.
func (c *Client) Upload(ctx context.Context, path, displayName, mimeType string) (FileInfo, error) {
	var empty FileInfo
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return empty, errors.New("gemini upload: api key required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return empty, fmt.Errorf("gemini upload: stat input: %w", err)
	}

	sessionURL, err := c.startUpload(ctx, displayName, mimeType, info.Size())
	if err != nil {
		return empty, err
	}

	file, err := os.Open(path)
	if err != nil {
		return empty, fmt.Errorf("gemini upload: open input: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionURL, file)
	if err != nil {
		return empty, fmt.Errorf("gemini upload: new request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("gemini upload: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("gemini upload: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		File struct {
			Name string `json:"name"`
			URI  string `json:"uri"`
		} `json:"file"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return empty, fmt.Errorf("gemini upload: decode response: %w", err)
	}
	if parsed.File.Name == "" {
		return empty, fmt.Errorf("gemini upload: response missing file name (snippet: %s)", summarizeSnippet(string(body)))
	}
	return FileInfo{Name: parsed.File.Name, URI: parsed.File.URI}, nil
}

func (c *Client) startUpload(ctx context.Context, displayName, mimeType string, size int64) (string, error) {
	payload := map[string]any{
		"file": map[string]any{"display_name": displayName},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini upload: encode start body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, strings.NewReader(string(encoded)))
	if err != nil {
		return "", fmt.Errorf("gemini upload: new start request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini upload: start session: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	sessionURL := strings.TrimSpace(resp.Header.Get("X-Goog-Upload-URL"))
	if sessionURL == "" {
		return "", errors.New("gemini upload: start response missing session url")
	}
	return sessionURL, nil
}

// CreateBatch submits an uploaded JSONL file as a batch job against model
// and returns the remote batch name used for polling.
func (c *Client) CreateBatch(ctx context.Context, model, inputFileName, displayName string) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", errors.New("gemini batch: model required")
	}
	if strings.TrimSpace(inputFileName) == "" {
		return "", errors.New("gemini batch: input file required")
	}
	payload := map[string]any{
		"batch": map[string]any{
			"display_name": displayName,
			"input_config": map[string]any{"file_name": inputFileName},
		},
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:batchGenerateContent", c.cfg.BaseURL, model)
	raw, err := c.postJSONWithRetry(ctx, endpoint, payload, "gemini batch create")
	if err != nil {
		return "", err
	}
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("gemini batch create: decode response: %w", err)
	}
	if parsed.Name == "" {
		return "", fmt.Errorf("gemini batch create: response missing name (snippet: %s)", summarizeSnippet(string(raw)))
	}
	return parsed.Name, nil
}

// GetBatch fetches the current state of a remote batch. The operation
// payload varies between snake_case and camelCase and between metadata
// and response envelopes, so extraction is tolerant.
func (c *Client) GetBatch(ctx context.Context, name string) (BatchStatus, error) {
	var empty BatchStatus
	if strings.TrimSpace(name) == "" {
		return empty, errors.New("gemini batch: name required")
	}
	endpoint := fmt.Sprintf("%s/v1beta/%s", c.cfg.BaseURL, name)
	raw, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return empty, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return empty, fmt.Errorf("gemini batch get: decode response: %w", err)
	}

	status := BatchStatus{Name: name, Raw: raw}
	meta, _ := doc["metadata"].(map[string]any)
	status.State = firstString(doc, meta, "state")
	if status.State == "" {
		if done, _ := doc["done"].(bool); done {
			status.State = BatchStateSucceeded
		}
	}

	for _, container := range []map[string]any{responseEnvelope(doc), meta, doc} {
		if container == nil {
			continue
		}
		if out := nestedMap(container, "output"); out != nil {
			if f := firstString(out, nil, "responsesFile", "responses_file"); f != "" {
				status.ResponsesFile = f
				break
			}
		}
		if f := firstString(container, nil, "responsesFile", "responses_file"); f != "" {
			status.ResponsesFile = f
			break
		}
	}

	for _, container := range []map[string]any{meta, doc} {
		if container == nil {
			continue
		}
		if stats := nestedMap(container, "batchStats", "batch_stats"); stats != nil {
			status.Stats = BatchStats{
				Total:     firstInt(stats, "requestCount", "request_count"),
				Succeeded: firstInt(stats, "successfulRequestCount", "successful_request_count", "completedRequestCount"),
				Failed:    firstInt(stats, "failedRequestCount", "failed_request_count"),
			}
			break
		}
	}

	return status, nil
}

// DownloadFile streams a remote file's content into dst. Generated files
// usually advertise a downloadUri in their metadata; when they do not,
// the media download endpoint is used instead.
func (c *Client) DownloadFile(ctx context.Context, fileName string, dst io.Writer) error {
	if strings.TrimSpace(fileName) == "" {
		return errors.New("gemini download: file name required")
	}
	metaRaw, err := c.getJSON(ctx, fmt.Sprintf("%s/v1beta/%s", c.cfg.BaseURL, fileName))
	if err != nil {
		return err
	}
	var meta map[string]any
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return fmt.Errorf("gemini download: decode metadata: %w", err)
	}

	target := firstString(meta, nil, "downloadUri", "download_uri")
	if target == "" {
		target = fmt.Sprintf("%s/download/v1beta/%s:download?alt=media", c.cfg.BaseURL, fileName)
	}
	return c.streamGet(ctx, target, dst)
}

func (c *Client) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	return c.doJSON(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) streamGet(ctx context.Context, endpoint string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("gemini download: new request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini download: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("gemini download: copy body: %w", err)
	}
	return nil
}

func responseEnvelope(doc map[string]any) map[string]any {
	resp, _ := doc["response"].(map[string]any)
	return resp
}

func nestedMap(container map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if m, ok := container[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func firstString(primary, secondary map[string]any, keys ...string) string {
	for _, container := range []map[string]any{primary, secondary} {
		if container == nil {
			continue
		}
		for _, key := range keys {
			if s, ok := container[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstInt(container map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := container[key].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
