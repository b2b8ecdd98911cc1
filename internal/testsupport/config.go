package testsupport

import (
	"path/filepath"
	"testing"

	"tagpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DBPath = filepath.Join(base, "tagpipe.sqlite")
	cfg.Paths.StoreDir = filepath.Join(base, "store")
	cfg.Paths.BatchDir = filepath.Join(base, "batch_jobs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Gemini.APIKey = "test-key"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkers overrides the interactive worker pool size on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(c *config.Config) {
		c.Tagging.Workers = workers
	}
}

// WithChunkSize overrides the progress chunk size on the test config.
func WithChunkSize(size int) ConfigOption {
	return func(c *config.Config) {
		c.Tagging.ChunkSize = size
	}
}

// WithFallbackModel overrides the fallback model on the test config. Empty
// disables fallback escalation.
func WithFallbackModel(model string) ConfigOption {
	return func(c *config.Config) {
		c.Gemini.FallbackModel = model
	}
}
