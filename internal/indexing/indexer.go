package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/logging"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/samtools"
	"ldseq/internal/stage"
)

// Indexer builds .bai indexes for sorted BAMs.
type Indexer struct {
	cfg      *config.Config
	logger   *slog.Logger
	samtools samtools.Client
}

// New constructs an Indexer with a CLI-backed samtools client.
func New(cfg *config.Config, logger *slog.Logger) *Indexer {
	return NewWithDependencies(cfg, logger, samtools.NewCLI(samtools.WithBinary(cfg.SamtoolsBinary())))
}

// NewWithDependencies allows injecting a custom samtools client (used for tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, client samtools.Client) *Indexer {
	indexer := &Indexer{
		cfg:      cfg,
		samtools: client,
	}
	indexer.SetLogger(logger)
	return indexer
}

// SetLogger updates the indexer's logging destination while preserving
// component labeling.
func (i *Indexer) SetLogger(logger *slog.Logger) {
	i.logger = logging.NewComponentLogger(logger, "index")
}

// Name identifies the stage.
func (i *Indexer) Name() string {
	return "index"
}

// Fresh reports whether the .bai is already newer than the sorted BAM.
func (i *Indexer) Fresh(_ context.Context, smp *sample.Sample) (bool, error) {
	return artifact.Fresh(smp.IndexPath, smp.SortedBAM), nil
}

// Execute indexes the sorted BAM, falling back to a plain index invocation
// when the threaded form is rejected.
func (i *Indexer) Execute(ctx context.Context, smp *sample.Sample) error {
	logger := logging.WithContext(ctx, i.logger)

	if info, err := os.Stat(smp.SortedBAM); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrArtifactMissing, "index", "locate sorted bam",
			fmt.Sprintf("sorted BAM %s is missing; rerun the pipeline to regenerate it", filepath.Base(smp.SortedBAM)), err)
	}

	logFile, err := artifact.AppendFile(smp.SamtoolsLog)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "index", "open samtools log", "", err)
	}
	defer logFile.Close()

	threadedErr := i.samtools.Index(ctx, samtools.IndexRequest{
		BAM:     smp.SortedBAM,
		Threads: i.cfg.Pipeline.Threads,
		Log:     logFile,
	})
	if threadedErr != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTransient, "index", "samtools index", "", ctx.Err())
		}
		logger.Debug("threaded index failed, retrying without thread flag",
			logging.Error(threadedErr))
		if err := i.samtools.Index(ctx, samtools.IndexRequest{BAM: smp.SortedBAM, Log: logFile}); err != nil {
			return services.Wrap(services.ErrExternalTool, "index", "samtools index",
				"check "+filepath.Base(smp.SamtoolsLog)+" for tool output", err)
		}
	}

	if info, err := os.Stat(smp.IndexPath); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "index", "verify index",
			fmt.Sprintf("samtools index finished but %s is missing or empty", filepath.Base(smp.IndexPath)), err)
	}

	logger.Debug("index complete", logging.String("output", smp.IndexPath))
	return nil
}

// HealthCheck verifies samtools is invocable.
func (i *Indexer) HealthCheck(context.Context) stage.Health {
	const name = "index"
	if i.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if i.samtools == nil {
		return stage.Unhealthy(name, "samtools client unavailable")
	}
	binary := strings.TrimSpace(i.cfg.SamtoolsBinary())
	if binary == "" {
		return stage.Unhealthy(name, "samtools binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(name)
}
