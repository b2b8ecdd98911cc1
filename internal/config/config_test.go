package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tagpipe/internal/config"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected default model: %q", cfg.Gemini.Model)
	}
	if cfg.Tagging.Workers != 4 || cfg.Tagging.ChunkSize != 60 {
		t.Fatalf("unexpected tagging defaults: %+v", cfg.Tagging)
	}
	if !filepath.IsAbs(cfg.Paths.DBPath) {
		t.Fatalf("expected expanded db path, got %q", cfg.Paths.DBPath)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
db_path = "` + filepath.Join(dir, "tags.sqlite") + `"
batch_dir = "` + filepath.Join(dir, "batches") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[gemini]
model = "gemini-custom"
fallback_model = ""

[tagging]
source = "scans"
workers = 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved path %q (exists), got %q exists=%v", path, resolved, exists)
	}
	if cfg.Gemini.Model != "gemini-custom" {
		t.Fatalf("model override not applied: %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.FallbackModel != "" {
		t.Fatalf("expected fallback disabled, got %q", cfg.Gemini.FallbackModel)
	}
	if cfg.Tagging.Source != "scans" || cfg.Tagging.Workers != 8 {
		t.Fatalf("tagging overrides not applied: %+v", cfg.Tagging)
	}
	// Untouched sections keep defaults.
	if cfg.Estimator.BatchRPS != 15.0 {
		t.Fatalf("unexpected estimator default: %+v", cfg.Estimator)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"image kind", func(c *config.Config) { c.Tagging.ImageKind = "preview" }, "image_kind"},
		{"fallback equals primary", func(c *config.Config) { c.Gemini.FallbackModel = c.Gemini.Model }, "fallback_model"},
		{"zero workers", func(c *config.Config) { c.Tagging.Workers = 0 }, "tagging.workers"},
		{"interactive rps", func(c *config.Config) { c.Estimator.InteractiveRPS = 0 }, "interactive_rps"},
		{"poll interval", func(c *config.Config) { c.Batch.PollInterval = 0 }, "poll_interval"},
		{"log format", func(c *config.Config) { c.Logging.Format = "yaml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("expected API key from environment, got %q", cfg.Gemini.APIKey)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Tagging.MinBatch != 500 {
		t.Fatalf("sample min_batch mismatch: %d", cfg.Tagging.MinBatch)
	}
}
