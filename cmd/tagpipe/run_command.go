package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tagpipe/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var source string
	var limit int
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Select, preflight, and label catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			runMode, err := parseMode(mode)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			env, err := ctx.openEnvironment(signalCtx)
			if err != nil {
				return err
			}
			defer env.Close()

			summary, runErr := env.manager.Run(signalCtx, pipeline.RunOptions{
				Mode:   runMode,
				Source: source,
				Limit:  limit,
				Force:  force,
			})
			printRunSummary(cmd.OutOrStdout(), summary)
			return runErr
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "auto", "Run mode: auto, interactive, or batch")
	cmd.Flags().StringVar(&source, "source", "", "Restrict candidates to one catalog source")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of items selected (0 = no cap)")
	cmd.Flags().BoolVar(&force, "force", false, "Relabel items that already have results")
	return cmd
}

func parseMode(value string) (pipeline.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return pipeline.ModeAuto, nil
	case "interactive":
		return pipeline.ModeInteractive, nil
	case "batch":
		return pipeline.ModeBatch, nil
	default:
		return pipeline.ModeAuto, fmt.Errorf("unknown mode %q (expected auto, interactive, or batch)", value)
	}
}
