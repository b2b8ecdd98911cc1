package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
	"tagpipe/internal/textutil"
	"tagpipe/internal/triage"
)

func newTriageCommand(ctx *commandContext) *cobra.Command {
	var model string
	var since time.Duration
	var limit int
	var showSamples bool

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Classify recorded labeling errors and suggest next actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			filter := results.ErrorFilter{
				Provider: gemini.Provider,
				Model:    model,
				Limit:    limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			errs, err := env.store.ListErrors(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report := triage.Build(errs)
			if report.Total == 0 {
				fmt.Fprintln(out, "No recorded errors.")
				return nil
			}
			fmt.Fprintf(out, "%d errors: %d resolved by later results, %d actionable\n",
				report.Total, report.Resolved, report.Actionable)

			rows := make([][]string, 0, len(report.Groups))
			for _, group := range report.Groups {
				rows = append(rows, []string{
					group.Heading(),
					strconv.Itoa(group.Count),
					strconv.Itoa(group.Resolved),
					strconv.Itoa(group.Actionable()),
					string(group.Action),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Kind", "Count", "Resolved", "Actionable", "Action"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))

			if !showSamples {
				return nil
			}
			for _, group := range report.Groups {
				if group.Actionable() == 0 {
					continue
				}
				fmt.Fprintf(out, "\n%s:\n", group.Heading())
				for _, sample := range group.Samples {
					if sample.ResolvedAfter {
						continue
					}
					fmt.Fprintf(out, "  %s  %s\n", sample.ItemID, textutil.Snippet(sample.Diagnostic, 120))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Only errors from this model")
	cmd.Flags().DurationVar(&since, "since", 0, "Only errors newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of errors examined (0 = no cap)")
	cmd.Flags().BoolVar(&showSamples, "samples", false, "Print sample diagnostics per actionable kind")
	return cmd
}
