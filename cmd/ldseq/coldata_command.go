package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ldseq/internal/analysis"
	"ldseq/internal/logging"
)

func newColDataCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "coldata",
		Short: "Write the colData.csv experiment design template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			report, err := analysis.New(cfg, logger).WriteColData(force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !report.Written {
				fmt.Fprintf(out, "No sorted BAMs under %s; run ldseq run first\n", cfg.Paths.BamDir)
				return nil
			}
			fmt.Fprintf(out, "Wrote %s for %d samples\n", report.Path, len(report.Samples))
			fmt.Fprintln(out, "Fill in the condition column before running ldseq analyze.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing colData.csv")
	return cmd
}
