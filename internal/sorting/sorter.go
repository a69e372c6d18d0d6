package sorting

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

// Sorter coordinate-sorts unsorted alignment BAMs.
type Sorter struct {
	cfg      *config.Config
	logger   *slog.Logger
	samtools samtools.Client
}

// New constructs a Sorter with a CLI-backed samtools client.
func New(cfg *config.Config, logger *slog.Logger) *Sorter {
	return NewWithDependencies(cfg, logger, samtools.NewCLI(samtools.WithBinary(cfg.SamtoolsBinary())))
}

// NewWithDependencies allows injecting a custom samtools client (used for tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, client samtools.Client) *Sorter {
	sorter := &Sorter{
		cfg:      cfg,
		samtools: client,
	}
	sorter.SetLogger(logger)
	return sorter
}

// SetLogger updates the sorter's logging destination while preserving
// component labeling.
func (s *Sorter) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "sort")
}

// Name identifies the stage.
func (s *Sorter) Name() string {
	return "sort"
}

// Fresh reports whether the sorted BAM is already newer than the unsorted
// intermediate. A sorted BAM whose intermediate was cleaned up in an earlier
// run counts as fresh.
func (s *Sorter) Fresh(_ context.Context, smp *sample.Sample) (bool, error) {
	return artifact.Fresh(smp.SortedBAM, smp.UnsortedBAM), nil
}

// Execute sorts the unsorted BAM into a temp file, validates it, promotes
// it, and only then deletes the intermediate.
func (s *Sorter) Execute(ctx context.Context, smp *sample.Sample) error {
	logger := logging.WithContext(ctx, s.logger)

	if info, err := os.Stat(smp.UnsortedBAM); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrArtifactMissing, "sort", "locate unsorted bam",
			fmt.Sprintf("intermediate %s is missing; rerun the pipeline to regenerate it", filepath.Base(smp.UnsortedBAM)), err)
	}

	logFile, err := artifact.AppendFile(smp.SamtoolsLog)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "sort", "open samtools log", "", err)
	}
	defer logFile.Close()

	temp := artifact.TempPath(smp.SortedBAM)
	logger.Debug("sorting alignments",
		logging.String("input", smp.UnsortedBAM),
		logging.Int("threads", s.cfg.Pipeline.Threads))

	sortErr := s.samtools.Sort(ctx, samtools.SortRequest{
		Input:      smp.UnsortedBAM,
		Output:     temp,
		Threads:    s.cfg.Pipeline.Threads,
		TempPrefix: temp + ".sort",
		Log:        logFile,
	})
	if sortErr != nil {
		artifact.Discard(temp)
		return services.Wrap(services.ErrExternalTool, "sort", "samtools sort",
			"check "+filepath.Base(smp.SamtoolsLog)+" for tool output", sortErr)
	}

	if err := s.samtools.Quickcheck(ctx, temp, logFile); err != nil {
		artifact.Discard(temp)
		return services.Wrap(services.ErrExternalTool, "sort", "validate bam",
			fmt.Sprintf("sorted output for %s failed quickcheck", smp.Base), err)
	}
	if err := artifact.Replace(temp, smp.SortedBAM); err != nil {
		artifact.Discard(temp)
		return services.Wrap(services.ErrTransient, "sort", "promote bam", "", err)
	}

	if err := os.Remove(smp.UnsortedBAM); err != nil {
		logger.Warn("could not remove unsorted intermediate",
			logging.String("path", smp.UnsortedBAM),
			logging.Error(err))
	}

	logger.Debug("sort complete", logging.String("output", smp.SortedBAM))
	return nil
}

// HealthCheck verifies samtools is invocable.
func (s *Sorter) HealthCheck(context.Context) stage.Health {
	const name = "sort"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if s.samtools == nil {
		return stage.Unhealthy(name, "samtools client unavailable")
	}
	binary := strings.TrimSpace(s.cfg.SamtoolsBinary())
	if binary == "" {
		return stage.Unhealthy(name, "samtools binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(name)
}
