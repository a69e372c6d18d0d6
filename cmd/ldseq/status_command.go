package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ldseq/internal/align"
	"ldseq/internal/config"
	"ldseq/internal/indexing"
	"ldseq/internal/ledger"
	"ldseq/internal/logging"
	"ldseq/internal/sample"
	"ldseq/internal/sorting"
	"ldseq/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-sample artifact freshness and the latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			renderSampleSection(cmd.Context(), out, cfg, colorize)
			fmt.Fprintln(out)
			renderLatestRunSection(cmd.Context(), out, cfg, colorize)
			return nil
		},
	}
}

func renderSampleSection(ctx context.Context, out io.Writer, cfg *config.Config, colorize bool) {
	fmt.Fprintln(out, sectionHeader("Samples", colorize))

	samples, skipped, err := sample.Discover(cfg.Paths.FastqDir, cfg.Paths.BamDir, cfg.Paths.LogDir)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("FASTQ", statusError, err.Error(), colorize))
		return
	}
	if len(samples) == 0 && len(skipped) == 0 {
		fmt.Fprintln(out, renderStatusLine("reads", statusInfo, "no read pairs found", colorize))
		return
	}

	logger := logging.NewNop()
	handlers := []stage.Handler{
		align.New(cfg, logger),
		sorting.New(cfg, logger),
		indexing.New(cfg, logger),
	}

	rows := make([][]string, 0, len(samples))
	for i := range samples {
		smp := &samples[i]
		state := "ready"
		for _, handler := range handlers {
			fresh, err := handler.Fresh(ctx, smp)
			if err != nil {
				state = "unknown"
				break
			}
			if !fresh {
				state = "pending"
				break
			}
		}
		rows = append(rows, []string{
			smp.Base,
			sizeCell(fileSize(smp.R1) + fileSize(smp.R2)),
			sizeCell(fileSize(smp.SortedBAM)),
			presenceCell(smp.IndexPath),
			state,
		})
	}

	fmt.Fprintln(out, renderTable([]string{"Sample", "Reads", "Sorted BAM", "Index", "State"}, rows, 1, 2))
	for _, skip := range skipped {
		fmt.Fprintln(out, renderStatusLine(skip.Base, statusWarn, "skipped ("+string(skip.Reason)+")", colorize))
	}
}

func renderLatestRunSection(ctx context.Context, out io.Writer, cfg *config.Config, colorize bool) {
	fmt.Fprintln(out, sectionHeader("Latest run", colorize))

	store, err := ledger.Open(cfg)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("ledger", statusError, err.Error(), colorize))
		return
	}
	defer store.Close()

	run, err := store.LatestRun(ctx)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("ledger", statusError, err.Error(), colorize))
		return
	}
	if run == nil {
		fmt.Fprintln(out, renderStatusLine("runs", statusInfo, "no runs recorded", colorize))
		return
	}

	kind := statusInfo
	switch run.Status {
	case ledger.RunStatusCompleted:
		kind = statusOK
	case ledger.RunStatusFailed:
		kind = statusError
	}

	counts := fmt.Sprintf("%d completed, %d failed, %d skipped of %d discovered",
		run.Completed, run.Failed, run.Skipped, run.Discovered)

	fmt.Fprintln(out, renderStatusLine("run", statusInfo, run.ID+" ("+run.Command+")", colorize))
	fmt.Fprintln(out, renderStatusLine("status", kind, run.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("samples", statusInfo, counts, colorize))
	fmt.Fprintln(out, renderStatusLine("started", statusInfo, formatTime(run.StartedAt), colorize))
	if run.FinishedAt != nil {
		duration := run.FinishedAt.Sub(run.StartedAt)
		fmt.Fprintln(out, renderStatusLine("duration", statusInfo, formatDuration(duration), colorize))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("error", statusError, run.ErrorMessage, colorize))
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

func sizeCell(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

func presenceCell(path string) string {
	if fileSize(path) > 0 {
		return "yes"
	}
	return "-"
}
