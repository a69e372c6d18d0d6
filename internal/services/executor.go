package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command describes a single external tool invocation. Stdout and Stderr may
// be nil; output is discarded in that case. Stdin may carry streamed data
// from another tool.
type Command struct {
	Binary string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, command Command) error
}

// NewExecutor returns an Executor backed by os/exec.
func NewExecutor() Executor {
	return commandExecutor{}
}

var commandContext = exec.CommandContext

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, command Command) error {
	binary := strings.TrimSpace(command.Binary)
	if binary == "" {
		return errors.New("command binary required")
	}
	cmd := commandContext(ctx, binary, command.Args...) //nolint:gosec
	cmd.Stdin = command.Stdin
	cmd.Stdout = command.Stdout
	cmd.Stderr = command.Stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	return nil
}
