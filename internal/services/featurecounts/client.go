package featurecounts

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"ldseq/internal/services"
)

// CountRequest describes one featureCounts invocation over a set of
// coordinate-sorted BAM files. Counting is always paired-end because the
// alignment stage only admits proper pairs.
type CountRequest struct {
	Annotation  string
	Output      string
	Threads     int
	MinQuality  int
	FeatureType string
	Attribute   string
	BAMs        []string
	Log         io.Writer
}

// Client exposes the counting operation.
type Client interface {
	Count(ctx context.Context, req CountRequest) error
}

// Option customises CLI construction.
type Option func(*CLI)

// WithBinary overrides the featureCounts executable path.
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

// CLI invokes the featureCounts binary.
type CLI struct {
	binary   string
	executor services.Executor
}

// NewCLI constructs a featureCounts client with defaults applied.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{
		binary:   "featureCounts",
		executor: services.NewExecutor(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	return cli
}

// Count produces the raw count matrix at req.Output.
func (c *CLI) Count(ctx context.Context, req CountRequest) error {
	if req.Annotation == "" {
		return fmt.Errorf("featurecounts: annotation path is required")
	}
	if req.Output == "" {
		return fmt.Errorf("featurecounts: output path is required")
	}
	if len(req.BAMs) == 0 {
		return fmt.Errorf("featurecounts: at least one bam file is required")
	}

	args := []string{"-p"}
	if req.Threads > 0 {
		args = append(args, "-T", strconv.Itoa(req.Threads))
	}
	if req.MinQuality > 0 {
		args = append(args, "-Q", strconv.Itoa(req.MinQuality))
	}
	if req.FeatureType != "" {
		args = append(args, "-t", req.FeatureType)
	}
	if req.Attribute != "" {
		args = append(args, "-g", req.Attribute)
	}
	args = append(args, "-a", req.Annotation, "-o", req.Output)
	args = append(args, req.BAMs...)

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Log,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("featurecounts: %w", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
