package samtools

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"ldseq/internal/services"
)

// ViewFilterRequest converts streamed SAM records into BAM, keeping only
// reads mapped in proper pairs and dropping unmapped reads.
type ViewFilterRequest struct {
	Input  io.Reader
	Output string
	Log    io.Writer
}

// SortRequest coordinate-sorts a BAM file into Output.
type SortRequest struct {
	Input      string
	Output     string
	Threads    int
	TempPrefix string
	Log        io.Writer
}

// IndexRequest builds a .bai index beside the given BAM. A non-positive
// Threads omits the -@ flag entirely, which older samtools builds require.
type IndexRequest struct {
	BAM     string
	Threads int
	Log     io.Writer
}

// Client exposes the samtools operations the pipeline needs.
type Client interface {
	ViewFilter(ctx context.Context, req ViewFilterRequest) error
	Sort(ctx context.Context, req SortRequest) error
	Index(ctx context.Context, req IndexRequest) error
	Quickcheck(ctx context.Context, path string, log io.Writer) error
}

// Option customises CLI construction.
type Option func(*CLI)

// WithBinary overrides the samtools executable path.
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

// CLI invokes the samtools binary.
type CLI struct {
	binary   string
	executor services.Executor
}

// NewCLI constructs a samtools client with defaults applied.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{
		binary:   "samtools",
		executor: services.NewExecutor(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	return cli
}

// ViewFilter reads SAM from req.Input and writes proper-pair BAM records
// to req.Output.
func (c *CLI) ViewFilter(ctx context.Context, req ViewFilterRequest) error {
	if req.Input == nil {
		return fmt.Errorf("samtools view: input reader is required")
	}
	if req.Output == "" {
		return fmt.Errorf("samtools view: output path is required")
	}

	args := []string{"view", "-b", "-f", "0x2", "-F", "0x4", "-o", req.Output, "-"}
	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdin:  req.Input,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("samtools view: %w", err)
	}
	return nil
}

// Sort coordinate-sorts req.Input into req.Output.
func (c *CLI) Sort(ctx context.Context, req SortRequest) error {
	if req.Input == "" {
		return fmt.Errorf("samtools sort: input path is required")
	}
	if req.Output == "" {
		return fmt.Errorf("samtools sort: output path is required")
	}

	args := []string{"sort"}
	if req.Threads > 0 {
		args = append(args, "-@", strconv.Itoa(req.Threads))
	}
	if req.TempPrefix != "" {
		args = append(args, "-T", req.TempPrefix)
	}
	args = append(args, "-o", req.Output, req.Input)

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Log,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("samtools sort: %w", err)
	}
	return nil
}

// Index writes a .bai index for req.BAM.
func (c *CLI) Index(ctx context.Context, req IndexRequest) error {
	if req.BAM == "" {
		return fmt.Errorf("samtools index: bam path is required")
	}

	args := []string{"index"}
	if req.Threads > 0 {
		args = append(args, "-@", strconv.Itoa(req.Threads))
	}
	args = append(args, req.BAM)

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   args,
		Stdout: req.Log,
		Stderr: req.Log,
	})
	if err != nil {
		return fmt.Errorf("samtools index: %w", err)
	}
	return nil
}

// Quickcheck validates the structural integrity of a BAM file.
func (c *CLI) Quickcheck(ctx context.Context, path string, log io.Writer) error {
	if path == "" {
		return fmt.Errorf("samtools quickcheck: path is required")
	}

	err := c.executor.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   []string{"quickcheck", path},
		Stdout: log,
		Stderr: log,
	})
	if err != nil {
		return fmt.Errorf("samtools quickcheck: %w", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
