package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ldseq/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tools, workspace, reference data, and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			failed := 0
			failed += renderCheckSection(out, "Tools", deps.CheckBinaries(deps.Requirements(cfg)), colorize)
			failed += renderCheckSection(out, "Workspace", deps.CheckWorkspace(cfg), colorize)
			failed += renderCheckSection(out, "Reference", deps.CheckReference(cfg), colorize)

			fmt.Fprintln(out, sectionHeader("Notifications", colorize))
			if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
				fmt.Fprintln(out, renderStatusLine("ntfy", statusOK, "topic "+topic, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("ntfy", statusInfo, "not configured", colorize))
			}

			if failed > 0 {
				return fmt.Errorf("%d required checks failed", failed)
			}
			return nil
		},
	}
}

// renderCheckSection prints one doctor section and returns how many required
// checks failed. Optional checks render as warnings and never count.
func renderCheckSection(out io.Writer, title string, statuses []deps.Status, colorize bool) int {
	fmt.Fprintln(out, sectionHeader(title, colorize))

	failed := 0
	for _, status := range statuses {
		// Detail carries live information (free space, failure cause) and
		// wins over the static description when both are set.
		message := status.Detail
		if message == "" {
			message = status.Description
		}
		kind := statusOK
		if !status.Available {
			if status.Optional {
				kind = statusWarn
			} else {
				kind = statusError
				failed++
			}
		}
		fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
	}
	fmt.Fprintln(out)
	return failed
}
