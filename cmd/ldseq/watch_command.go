package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ldseq/internal/counting"
	"ldseq/internal/ledger"
	"ldseq/internal/logging"
	"ldseq/internal/pipeline"
	"ldseq/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var countAfter bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the FASTQ directory and run the pipeline on new read pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCount := countAfter || cfg.Watch.Count

			lock, err := acquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			sessionID := uuid.NewString()
			logger, _, err := newRunLogger(cfg, sessionID)
			if err != nil {
				return err
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer store.Close()

			watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner := pipeline.NewRunner(cfg, logger, store)
			counter := counting.New(cfg, logger)

			// Triggered runs serialize on runMu so a settled batch never
			// races the startup sweep or a still-running predecessor.
			var runMu sync.Mutex
			runOnce := func(runCtx context.Context) {
				runMu.Lock()
				defer runMu.Unlock()

				summary, err := runner.Run(runCtx, uuid.NewString(), "watch")
				if err != nil {
					logging.ErrorWithContext(logger, "watch run failed", "watch_run_failed", logging.Error(err))
					return
				}
				if !runCount || len(summary.Results) == 0 || summary.Failed() > 0 {
					return
				}
				if _, err := counter.Run(runCtx); err != nil {
					logging.ErrorWithContext(logger, "post-run count failed", "watch_count_failed", logging.Error(err))
				}
			}

			w := watcher.New(cfg, logger, func(runCtx context.Context, _ []string) {
				runOnce(runCtx)
			})
			if err := w.Start(watchCtx); err != nil {
				return err
			}
			defer w.Stop()

			// Sweep whatever arrived while nothing was watching.
			runOnce(watchCtx)

			<-watchCtx.Done()
			w.Stop()
			logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&countAfter, "count", false, "Run the counting pass after each successful run")
	return cmd
}
