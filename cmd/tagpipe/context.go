package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tagpipe/internal/catalog"
	"tagpipe/internal/config"
	"tagpipe/internal/logging"
	"tagpipe/internal/pipeline"
	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// runtimeEnv bundles the open stores and the pipeline manager for one
// command invocation. Close releases the database handle.
type runtimeEnv struct {
	cfg     *config.Config
	store   *results.Store
	cat     *catalog.Store
	logger  *slog.Logger
	manager *pipeline.Manager
}

func (e *runtimeEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func (c *commandContext) openEnvironment(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	store, err := results.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	cat := catalog.NewStore(store.DB())
	if err := cat.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure catalog schema: %w", err)
	}
	client := gemini.NewClient(gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		UploadURL:      cfg.Gemini.UploadURL,
		TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
	})
	env := &runtimeEnv{
		cfg:    cfg,
		store:  store,
		cat:    cat,
		logger: logger,
	}
	env.manager = pipeline.NewManager(cfg, store, cat, client, logger)
	return env, nil
}
