package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ldseq/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				return renderRunDetail(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			}
			return renderRunList(cmd.Context(), cmd.OutOrStdout(), store, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	return cmd
}

func renderRunList(ctx context.Context, out io.Writer, store *ledger.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "running"
		if run.FinishedAt != nil {
			duration = formatDuration(run.FinishedAt.Sub(run.StartedAt))
		}
		samples := fmt.Sprintf("%d/%d/%d", run.Completed, run.Failed, run.Skipped)
		rows = append(rows, []string{
			run.ID,
			run.Command,
			run.Status,
			formatTime(run.StartedAt),
			samples,
			duration,
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Command", "Status", "Started", "OK/Fail/Skip", "Duration"},
		rows,
		4, 5,
	))
	return nil
}

func renderRunDetail(ctx context.Context, out io.Writer, store *ledger.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Command:    %s\n", run.Command)
	fmt.Fprintf(out, "Status:     %s\n", run.Status)
	fmt.Fprintf(out, "Started:    %s\n", formatTime(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:   %s\n", formatTime(*run.FinishedAt))
		fmt.Fprintf(out, "Duration:   %s\n", formatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	fmt.Fprintf(out, "Discovered: %d (%d skipped at discovery)\n", run.Discovered, run.Skipped)
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", run.ErrorMessage)
	}

	results, err := store.SampleResults(ctx, runID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No sample results recorded")
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, result := range results {
		failure := result.FailedStage
		if failure != "" && result.Cause != "" {
			failure += " (" + result.Cause + ")"
		}
		rows = append(rows, []string{
			result.Base,
			result.Outcome,
			result.Stages,
			failure,
			formatDuration(result.Duration),
			result.ErrorMessage,
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Sample", "Outcome", "Stages", "Failure", "Duration", "Error"},
		rows,
		4,
	))
	return nil
}
