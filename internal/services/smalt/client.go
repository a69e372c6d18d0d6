package smalt

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"ldseq/internal/services"
)

// MapRequest describes one paired-end alignment. Alignments stream to
// Output in SAM form; tool diagnostics stream to Log.
type MapRequest struct {
	IndexPrefix string
	R1          string
	R2          string
	Threads     int
	Output      io.Writer
	Log         io.Writer
}

// IndexRequest describes a reference index build for a FASTA genome.
type IndexRequest struct {
	Prefix     string
	Genome     string
	WordLength int
	StepSize   int
	Log        io.Writer
}

// Client exposes the smalt operations the pipeline needs.
type Client interface {
	Map(ctx context.Context, req MapRequest) error
	Index(ctx context.Context, req IndexRequest) error
}

// Option customises CLI construction.
type Option func(*CLI)

// WithBinary overrides the smalt executable path.
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

// CLI invokes the smalt binary.
type CLI struct {
	binary   string
	executor services.Executor
}

// NewCLI constructs a smalt client with defaults applied.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{
		binary:   "smalt",
		executor: services.NewExecutor(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	return cli
}

// Map aligns a read pair against the index prefix.
func (c *CLI) Map(ctx context.Context, req MapRequest) error {
	if req.IndexPrefix == "" {
		return fmt.Errorf("smalt map: index prefix is required")
	}
	if req.R1 == "" || req.R2 == "" {
		return fmt.Errorf("smalt map: both mate files are required")
	}
	if req.Output == nil {
		return fmt.Errorf("smalt map: output writer is required")
	}

	args := []string{"map"}
	if req.Threads > 0 {
		args = append(args, "-n", strconv.Itoa(req.Threads))
	}
	args = append(args, req.IndexPrefix, req.R1, req.R2)

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Output,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("smalt map: %w", err)
	}
	return nil
}

// Index builds the hash index files for a genome.
func (c *CLI) Index(ctx context.Context, req IndexRequest) error {
	if req.Prefix == "" {
		return fmt.Errorf("smalt index: prefix is required")
	}
	if req.Genome == "" {
		return fmt.Errorf("smalt index: genome path is required")
	}

	args := []string{"index"}
	if req.WordLength > 0 {
		args = append(args, "-k", strconv.Itoa(req.WordLength))
	}
	if req.StepSize > 0 {
		args = append(args, "-s", strconv.Itoa(req.StepSize))
	}
	args = append(args, req.Prefix, req.Genome)

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Log,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("smalt index: %w", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
