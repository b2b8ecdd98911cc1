package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"

	"tagpipe/internal/estimate"
	"tagpipe/internal/pipeline"
	"tagpipe/internal/results"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(writer io.Writer, color, text string) string {
	if !shouldColorize(writer) {
		return text
	}
	return color + text + ansiReset
}

func printRunSummary(out io.Writer, summary pipeline.Summary) {
	sel := summary.Selection
	fmt.Fprintf(out, "Selected %d of %d items (%d covered, %d unresolved)\n",
		len(sel.Items), sel.TotalListed, sel.SkippedCovered, sel.SkippedUnresolved)
	if len(sel.Items) == 0 {
		fmt.Fprintln(out, "Nothing to label.")
		return
	}

	pre := summary.Preflight
	fmt.Fprintf(out, "Preflight: %d ready, %d unresolved, %d repaired\n",
		len(pre.Ready), len(pre.Unresolved), pre.Repaired)

	if summary.Aborted && summary.RunID == "" {
		fmt.Fprintln(out, colorize(out, ansiRed, "Aborted: "+summary.AbortCause))
		return
	}

	fmt.Fprintf(out, "Run %s (%s mode)\n", summary.RunID, summary.Mode)
	if summary.Mode == results.ModeBatch {
		fmt.Fprintf(out, "Batch jobs: %d, ingested %d, skipped %d, failed %d\n",
			summary.BatchJobs, summary.Ingest.Ingested, summary.Ingest.Skipped, summary.Ingest.Failed)
	} else {
		fmt.Fprintf(out, "Labeled %d (%d via fallback), %d errored, %d skipped\n",
			summary.Stats.Labeled, summary.Stats.FallbackLabeled,
			summary.Stats.Errored, summary.Stats.Skipped)
	}
	if summary.Aborted {
		fmt.Fprintln(out, colorize(out, ansiYellow, "Run ended early: "+summary.AbortCause))
	} else {
		fmt.Fprintln(out, colorize(out, ansiGreen, "Run complete."))
	}
}

func printEstimate(out io.Writer, est estimate.Estimate) {
	rows := [][]string{
		{"Items", strconv.Itoa(est.Items)},
		{"Interactive", formatDuration(est.Interactive)},
		{"Batch", formatDuration(est.Batch)},
		{"Cost", fmt.Sprintf("$%.2f", est.CostUSD)},
		{"Recommended", string(est.Recommended)},
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Metric", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
