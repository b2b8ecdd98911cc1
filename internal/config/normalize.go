package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGemini()
	c.normalizeTagging()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DBPath, err = expandPath(c.Paths.DBPath); err != nil {
		return fmt.Errorf("paths.db_path: %w", err)
	}
	if c.Paths.StoreDir, err = expandPath(c.Paths.StoreDir); err != nil {
		return fmt.Errorf("paths.store_dir: %w", err)
	}
	if c.Paths.BatchDir, err = expandPath(c.Paths.BatchDir); err != nil {
		return fmt.Errorf("paths.batch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	c.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gemini.BaseURL), "/")
	c.Gemini.UploadURL = strings.TrimRight(strings.TrimSpace(c.Gemini.UploadURL), "/")
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	c.Gemini.FallbackModel = strings.TrimSpace(c.Gemini.FallbackModel)
	if c.Gemini.Prompt == "" {
		c.Gemini.Prompt = DefaultPrompt
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultRequestTimeout
	}
}

func (c *Config) normalizeTagging() {
	c.Tagging.Source = strings.TrimSpace(c.Tagging.Source)
	c.Tagging.ImageKind = strings.ToLower(strings.TrimSpace(c.Tagging.ImageKind))
	if c.Tagging.ImageKind == "" {
		c.Tagging.ImageKind = defaultImageKind
	}
	if c.Tagging.Workers <= 0 {
		c.Tagging.Workers = defaultWorkers
	}
	if c.Tagging.ChunkSize <= 0 {
		c.Tagging.ChunkSize = defaultChunkSize
	}
	if c.Tagging.ChunkTimeout <= 0 {
		c.Tagging.ChunkTimeout = defaultChunkTimeout
	}
	c.Repair.Command = strings.TrimSpace(c.Repair.Command)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
