package rscript

import (
	"context"
	"fmt"
	"io"

	"ldseq/internal/services"
)

// RunRequest describes one script invocation. Both interpreter streams go
// to Log so R diagnostics land in a single file per run.
type RunRequest struct {
	Script string
	Args   []string
	Log    io.Writer
}

// Client exposes script execution.
type Client interface {
	Run(ctx context.Context, req RunRequest) error
}

// Option customises CLI construction.
type Option func(*CLI)

// WithBinary overrides the Rscript executable path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithExecutor overrides the command executor, primarily for tests.
func WithExecutor(executor services.Executor) Option {
	return func(c *CLI) {
		if executor != nil {
			c.executor = executor
		}
	}
}

// CLI invokes the Rscript binary.
type CLI struct {
	binary   string
	executor services.Executor
}

// NewCLI constructs an Rscript client with defaults applied.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{
		binary:   "Rscript",
		executor: services.NewExecutor(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	return cli
}

// Run executes the script with the given arguments.
func (c *CLI) Run(ctx context.Context, req RunRequest) error {
	if req.Script == "" {
		return fmt.Errorf("rscript: script path is required")
	}

	args := append([]string{req.Script}, req.Args...)
	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Log,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("rscript: %w", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
