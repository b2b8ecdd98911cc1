package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and database location configuration.
type Paths struct {
	DBPath   string `toml:"db_path"`
	StoreDir string `toml:"store_dir"`
	BatchDir string `toml:"batch_dir"`
	LogDir   string `toml:"log_dir"`
}

// Gemini contains connection settings for the labeling service.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	UploadURL      string `toml:"upload_url"`
	Model          string `toml:"model"`
	FallbackModel  string `toml:"fallback_model"`
	Prompt         string `toml:"prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tagging contains configuration for candidate selection and the interactive runner.
type Tagging struct {
	Source            string  `toml:"source"`
	ImageKind         string  `toml:"image_kind"`
	Workers           int     `toml:"workers"`
	ChunkSize         int     `toml:"chunk_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	ChunkTimeout      int     `toml:"chunk_timeout"`
	MinBatch          int     `toml:"min_batch"`
	RecordErrors      bool    `toml:"record_errors"`
}

// Repair contains configuration for the media repair collaborator.
type Repair struct {
	Enabled        bool   `toml:"enabled"`
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Estimator contains throughput and cost constants used for run planning.
type Estimator struct {
	InteractiveRPS  float64 `toml:"interactive_rps"`
	BatchRPS        float64 `toml:"batch_rps"`
	BatchOverheadS  float64 `toml:"batch_overhead_s"`
	CostPerItem     float64 `toml:"cost_per_item"`
	InputTokens     float64 `toml:"input_tokens"`
	OutputTokens    float64 `toml:"output_tokens"`
	CostPer1KInput  float64 `toml:"cost_per_1k_input"`
	CostPer1KOutput float64 `toml:"cost_per_1k_output"`
}

// Batch contains configuration for the asynchronous batch pipeline.
type Batch struct {
	PollInterval int   `toml:"poll_interval"`
	MaxWait      int   `toml:"max_wait"`
	MaxBytes     int64 `toml:"max_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tagpipe.
//
// Configuration sections by subsystem:
//   - Paths: database, image store, batch artifacts, and log directories
//   - Gemini: labeling service connection, models, and prompt
//   - Tagging: candidate source, worker pool, chunking, and rate limit
//   - Repair: external media repair command
//   - Estimator: throughput/cost constants for interactive-vs-batch planning
//   - Batch: poll interval and input file size cap
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Gemini    Gemini    `toml:"gemini"`
	Tagging   Tagging   `toml:"tagging"`
	Repair    Repair    `toml:"repair"`
	Estimator Estimator `toml:"estimator"`
	Batch     Batch     `toml:"batch"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tagpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tagpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the orchestrator writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Paths.DBPath), c.Paths.BatchDir, c.Paths.LogDir}
	if strings.TrimSpace(c.Paths.StoreDir) != "" {
		dirs = append(dirs, c.Paths.StoreDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
