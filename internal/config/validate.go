package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
//
// The Gemini API key is deliberately not validated here: read-only commands
// (status, triage, estimate against cached counts) must work without one. The
// pipeline checks credentials before any call that would spend quota.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateTagging(); err != nil {
		return err
	}
	if err := c.validateEstimator(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DBPath == "" {
		return errors.New("paths.db_path must be set")
	}
	if c.Paths.BatchDir == "" {
		return errors.New("paths.batch_dir must be set")
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.Model == "" {
		return errors.New("gemini.model must be set")
	}
	if c.Gemini.BaseURL == "" {
		return errors.New("gemini.base_url must be set")
	}
	if c.Gemini.FallbackModel == c.Gemini.Model && c.Gemini.FallbackModel != "" {
		return errors.New("gemini.fallback_model must differ from gemini.model (leave empty to disable fallback)")
	}
	return nil
}

func (c *Config) validateTagging() error {
	if c.Tagging.ImageKind != "thumb" && c.Tagging.ImageKind != "original" {
		return fmt.Errorf("tagging.image_kind must be %q or %q", "thumb", "original")
	}
	if c.Tagging.RequestsPerSecond < 0 {
		return errors.New("tagging.requests_per_second must not be negative")
	}
	if c.Tagging.MinBatch < 1 {
		return errors.New("tagging.min_batch must be at least 1")
	}
	return ensurePositiveMap(map[string]int{
		"tagging.workers":        c.Tagging.Workers,
		"tagging.chunk_size":     c.Tagging.ChunkSize,
		"tagging.chunk_timeout":  c.Tagging.ChunkTimeout,
		"gemini.timeout_seconds": c.Gemini.TimeoutSeconds,
	})
}

func (c *Config) validateEstimator() error {
	if c.Estimator.InteractiveRPS <= 0 {
		return errors.New("estimator.interactive_rps must be positive")
	}
	if c.Estimator.BatchRPS <= 0 {
		return errors.New("estimator.batch_rps must be positive")
	}
	if c.Estimator.BatchOverheadS < 0 {
		return errors.New("estimator.batch_overhead_s must not be negative")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.PollInterval < 1 {
		return errors.New("batch.poll_interval must be at least 1 second")
	}
	if c.Batch.MaxWait < 0 {
		return errors.New("batch.max_wait must not be negative (0 waits forever)")
	}
	if c.Batch.MaxBytes < 1 {
		return errors.New("batch.max_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q", "console", "json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
