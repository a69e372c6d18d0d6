package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ldseq/internal/counting"
	"ldseq/internal/logging"
	"ldseq/internal/services"
)

func newCountCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count reads per gene across the sorted BAM set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			counter := counting.New(cfg, logger)
			if health := counter.HealthCheck(cmd.Context()); !health.Ready {
				return services.Wrap(services.ErrConfiguration, "count", "preflight", health.Detail, nil)
			}

			report, err := counter.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.BAMs) == 0 {
				fmt.Fprintf(out, "No sorted BAMs under %s; run ldseq run first\n", cfg.Paths.BamDir)
				return nil
			}
			if !report.Counted && !report.Reshaped {
				fmt.Fprintf(out, "Count matrix up to date at %s\n", report.CountsPath)
				return nil
			}
			if report.Counted {
				fmt.Fprintf(out, "featureCounts wrote %s\n", report.RawPath)
			}
			fmt.Fprintf(out, "Count matrix %s: %s genes x %d samples (%s)\n",
				report.CountsPath, formatCount(report.Genes), len(report.BAMs), formatDuration(report.Duration))
			return nil
		},
	}
}
