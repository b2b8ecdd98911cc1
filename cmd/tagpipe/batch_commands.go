package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tagpipe/internal/batch"
	"tagpipe/internal/pipeline"
	"tagpipe/internal/results"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Asynchronous batch labeling",
	}

	batchCmd.AddCommand(newBatchSubmitCommand(ctx))
	batchCmd.AddCommand(newBatchWatchCommand(ctx))
	batchCmd.AddCommand(newBatchIngestCommand(ctx))
	batchCmd.AddCommand(newBatchResumeCommand(ctx))

	return batchCmd
}

func newBatchSubmitCommand(ctx *commandContext) *cobra.Command {
	var source string
	var limit int
	var force bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build batch input files and submit them without waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			summary, err := env.manager.SubmitBatch(cmd.Context(), pipeline.RunOptions{
				Source: source,
				Limit:  limit,
				Force:  force,
			})
			out := cmd.OutOrStdout()
			sel := summary.Selection
			fmt.Fprintf(out, "Selected %d of %d items (%d covered, %d unresolved)\n",
				len(sel.Items), sel.TotalListed, sel.SkippedCovered, sel.SkippedUnresolved)
			if err != nil {
				return err
			}
			if summary.Aborted {
				fmt.Fprintln(out, colorize(out, ansiRed, "Aborted: "+summary.AbortCause))
				return nil
			}
			if summary.BatchJobs == 0 {
				fmt.Fprintln(out, "Nothing to submit.")
				return nil
			}
			fmt.Fprintf(out, "Submitted %d batch job(s) for run %s.\n", summary.BatchJobs, summary.RunID)
			fmt.Fprintln(out, "Use 'tagpipe batch watch' or 'tagpipe batch resume' to collect results.")
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Restrict candidates to one catalog source")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of items selected (0 = no cap)")
	cmd.Flags().BoolVar(&force, "force", false, "Relabel items that already have results")
	return cmd
}

func newBatchWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll submitted batch jobs until they finish or the wait ceiling hits",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			env, err := ctx.openEnvironment(signalCtx)
			if err != nil {
				return err
			}
			defer env.Close()

			jobs, err := env.store.OpenBatchJobs(signalCtx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No open batch jobs.")
				return nil
			}

			pipe := env.manager.Batch()
			for i := range jobs {
				job := &jobs[i]
				if !job.Submitted() {
					fmt.Fprintf(out, "%s: not submitted yet (use 'tagpipe batch resume')\n", job.ID)
					continue
				}
				if job.State == results.JobSucceeded {
					fmt.Fprintf(out, "%s: already succeeded, ready to ingest\n", job.ID)
					continue
				}
				err := pipe.Watch(signalCtx, job)
				switch {
				case errors.Is(err, batch.ErrWaitExceeded):
					fmt.Fprintf(out, "%s: still running, watch again later\n", job.ID)
				case err != nil:
					fmt.Fprintf(out, "%s: %s\n", job.ID, colorize(out, ansiRed, err.Error()))
				default:
					fmt.Fprintf(out, "%s: %s\n", job.ID, job.State)
				}
			}
			return nil
		},
	}
}

func newBatchIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Download and ingest results for finished batch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			jobs, err := env.store.OpenBatchJobs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No open batch jobs.")
				return nil
			}

			pipe := env.manager.Batch()
			var totals batch.IngestStats
			for i := range jobs {
				job := &jobs[i]
				if job.State != results.JobSucceeded {
					fmt.Fprintf(out, "%s: %s, not ready to ingest\n", job.ID, job.State)
					continue
				}
				stats, err := pipe.Ingest(cmd.Context(), job)
				totals.Ingested += stats.Ingested
				totals.Skipped += stats.Skipped
				totals.Failed += stats.Failed
				if err != nil {
					fmt.Fprintf(out, "%s: %s\n", job.ID, colorize(out, ansiRed, err.Error()))
					continue
				}
				fmt.Fprintf(out, "%s: ingested %d, skipped %d, failed %d\n",
					job.ID, stats.Ingested, stats.Skipped, stats.Failed)
			}
			fmt.Fprintf(out, "Total: ingested %d, skipped %d, failed %d\n",
				totals.Ingested, totals.Skipped, totals.Failed)
			return nil
		},
	}
}

func newBatchResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Pick up every open batch job: submit, watch, and ingest as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			env, err := ctx.openEnvironment(signalCtx)
			if err != nil {
				return err
			}
			defer env.Close()

			stats, err := env.manager.ResumeBatches(signalCtx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d, skipped %d, failed %d\n",
				stats.Ingested, stats.Skipped, stats.Failed)
			return err
		},
	}
}
