package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ldseq/internal/ledger"
	"ldseq/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var maxJobs int
	var threads int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover read pairs and run the alignment pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if maxJobs > 0 {
				cfg.Pipeline.MaxJobs = maxJobs
			}
			if threads > 0 {
				cfg.Pipeline.Threads = threads
			}

			lock, err := acquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			runID := uuid.NewString()
			logger, _, err := newRunLogger(cfg, runID)
			if err != nil {
				return err
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer store.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner := pipeline.NewRunner(cfg, logger, store)
			summary, err := runner.Run(runCtx, runID, "run")
			if err != nil {
				return err
			}

			printRunSummary(cmd.OutOrStdout(), summary)
			if failed := summary.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d samples failed", failed, len(summary.Results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Maximum samples processed concurrently (overrides pipeline.max_jobs)")
	cmd.Flags().IntVar(&threads, "threads", 0, "Threads per external tool invocation (overrides pipeline.threads)")
	return cmd
}

func printRunSummary(out io.Writer, summary *pipeline.Summary) {
	if len(summary.Results) == 0 && len(summary.Skipped) == 0 {
		fmt.Fprintln(out, "No read pairs found")
		return
	}

	rows := make([][]string, 0, len(summary.Results)+len(summary.Skipped))
	for _, result := range summary.Results {
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		rows = append(rows, []string{
			result.Sample.Base,
			string(result.Outcome),
			result.StageSummary(),
			formatDuration(result.Duration),
			errText,
		})
	}
	for _, skip := range summary.Skipped {
		rows = append(rows, []string{skip.Base, "skipped (" + string(skip.Reason) + ")"})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Sample", "Outcome", "Stages", "Duration", "Error"},
		rows,
		3,
	))
	fmt.Fprintf(out, "%d completed, %d failed, %d skipped in %s\n",
		summary.Completed(), summary.Failed(), len(summary.Skipped), formatDuration(summary.Duration()))
}
