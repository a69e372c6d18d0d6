package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ldseq/internal/analysis"
	"ldseq/internal/logging"
	"ldseq/internal/services"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the DESeq2 analysis script over the count matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			analyzer := analysis.New(cfg, logger)
			if health := analyzer.HealthCheck(cmd.Context()); !health.Ready {
				return services.Wrap(services.ErrConfiguration, "analyze", "preflight", health.Detail, nil)
			}

			report, err := analyzer.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DESeq2 finished for %d samples in %s\n", report.Samples, formatDuration(report.Duration))
			fmt.Fprintf(out, "Results under %s\n", report.OutputDir)
			fmt.Fprintf(out, "R output captured in %s\n", filepath.Join(cfg.Paths.LogDir, analysis.LogName))
			return nil
		},
	}
}
