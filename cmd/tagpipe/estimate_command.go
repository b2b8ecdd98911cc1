package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagpipe/internal/pipeline"
)

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var source string
	var limit int
	var force bool

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Project run duration and cost without labeling anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			sel, est, err := env.manager.Estimate(cmd.Context(), pipeline.RunOptions{
				Source: source,
				Limit:  limit,
				Force:  force,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Selected %d of %d items (%d covered, %d unresolved)\n",
				len(sel.Items), sel.TotalListed, sel.SkippedCovered, sel.SkippedUnresolved)
			printEstimate(out, est)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Restrict candidates to one catalog source")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of items selected (0 = no cap)")
	cmd.Flags().BoolVar(&force, "force", false, "Include items that already have results")
	return cmd
}
