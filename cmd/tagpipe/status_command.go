package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tagpipe/internal/services/gemini"
)

const recentRunLimit = 10

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show labeling coverage, recent runs, and open batch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			cmdCtx := cmd.Context()
			out := cmd.OutOrStdout()

			items, err := env.cat.ListItems(cmdCtx, env.cfg.Tagging.Source, 0)
			if err != nil {
				return err
			}
			covered, err := env.store.CoveredItemIDs(cmdCtx, gemini.Provider)
			if err != nil {
				return err
			}
			resultCount, err := env.store.CountResults(cmdCtx, gemini.Provider)
			if err != nil {
				return err
			}
			remaining := len(items) - len(covered)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Fprintf(out, "Catalog: %d items, %d covered, %d remaining (%d results stored)\n",
				len(items), len(covered), remaining, resultCount)

			runs, err := env.store.RecentRuns(cmdCtx, recentRunLimit)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					finished := "-"
					if run.FinishedAt != nil {
						finished = formatTime(*run.FinishedAt)
					}
					rows = append(rows, []string{
						shortID(run.ID),
						string(run.Mode),
						run.Model,
						strconv.Itoa(run.Labeled),
						strconv.Itoa(run.Errored),
						strconv.Itoa(run.Skipped),
						formatTime(run.StartedAt),
						finished,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Mode", "Model", "Labeled", "Errored", "Skipped", "Started", "Finished"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
			}

			jobs, err := env.store.OpenBatchJobs(cmdCtx)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No open batch jobs.")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					shortID(job.ID),
					string(job.State),
					strconv.Itoa(job.RequestCount),
					formatTime(job.CreatedAt),
					job.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "State", "Requests", "Created", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
