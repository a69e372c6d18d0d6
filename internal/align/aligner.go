package align

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/logging"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/samtools"
	"ldseq/internal/services/smalt"
	"ldseq/internal/stage"
)

// Aligner maps read pairs against the reference index.
type Aligner struct {
	cfg      *config.Config
	logger   *slog.Logger
	smalt    smalt.Client
	samtools samtools.Client
}

// New constructs an Aligner with CLI-backed tool clients.
func New(cfg *config.Config, logger *slog.Logger) *Aligner {
	return NewWithDependencies(cfg, logger,
		smalt.NewCLI(smalt.WithBinary(cfg.SmaltBinary())),
		samtools.NewCLI(samtools.WithBinary(cfg.SamtoolsBinary())),
	)
}

// NewWithDependencies allows injecting custom tool clients (used for tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, smaltClient smalt.Client, samtoolsClient samtools.Client) *Aligner {
	aligner := &Aligner{
		cfg:      cfg,
		smalt:    smaltClient,
		samtools: samtoolsClient,
	}
	aligner.SetLogger(logger)
	return aligner
}

// SetLogger updates the aligner's logging destination while preserving
// component labeling.
func (a *Aligner) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, "align")
}

// Name identifies the stage.
func (a *Aligner) Name() string {
	return "map"
}

// Fresh reports whether mapping can be skipped: either the unsorted BAM or
// the final sorted BAM is already newer than both read files.
func (a *Aligner) Fresh(_ context.Context, s *sample.Sample) (bool, error) {
	if artifact.Fresh(s.UnsortedBAM, s.R1, s.R2) {
		return true, nil
	}
	return artifact.Fresh(s.SortedBAM, s.R1, s.R2), nil
}

// Execute runs smalt map piped into a samtools proper-pair filter, writing
// the unsorted BAM through a temp file that is promoted only after a
// quickcheck pass.
func (a *Aligner) Execute(ctx context.Context, s *sample.Sample) error {
	logger := logging.WithContext(ctx, a.logger)

	smaltLog, err := artifact.AppendFile(s.SmaltLog)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "map", "open smalt log", "", err)
	}
	defer smaltLog.Close()

	samtoolsLog, err := artifact.AppendFile(s.SamtoolsLog)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "map", "open samtools log", "", err)
	}
	defer samtoolsLog.Close()

	temp := artifact.TempPath(s.UnsortedBAM)
	logger.Debug("mapping read pair",
		logging.String("r1", s.R1),
		logging.String("r2", s.R2),
		logging.Int("threads", a.cfg.Pipeline.Threads))

	reader, writer := io.Pipe()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		mapErr := a.smalt.Map(groupCtx, smalt.MapRequest{
			IndexPrefix: a.cfg.IndexPrefix(),
			R1:          s.R1,
			R2:          s.R2,
			Threads:     a.cfg.Pipeline.Threads,
			Output:      writer,
			Log:         smaltLog,
		})
		writer.CloseWithError(mapErr)
		if mapErr != nil {
			return services.Wrap(services.ErrExternalTool, "map", "smalt map",
				"check "+filepath.Base(s.SmaltLog)+" for tool output", mapErr)
		}
		return nil
	})
	group.Go(func() error {
		filterErr := a.samtools.ViewFilter(groupCtx, samtools.ViewFilterRequest{
			Input:  reader,
			Output: temp,
			Log:    samtoolsLog,
		})
		reader.CloseWithError(filterErr)
		if filterErr != nil {
			return services.Wrap(services.ErrExternalTool, "map", "filter alignments",
				"check "+filepath.Base(s.SamtoolsLog)+" for tool output", filterErr)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		artifact.Discard(temp)
		return err
	}

	if err := a.samtools.Quickcheck(ctx, temp, samtoolsLog); err != nil {
		artifact.Discard(temp)
		return services.Wrap(services.ErrExternalTool, "map", "validate bam",
			fmt.Sprintf("mapped output for %s failed quickcheck", s.Base), err)
	}
	if err := artifact.Replace(temp, s.UnsortedBAM); err != nil {
		artifact.Discard(temp)
		return services.Wrap(services.ErrTransient, "map", "promote bam", "", err)
	}

	logger.Debug("mapping complete", logging.String("output", s.UnsortedBAM))
	return nil
}

// HealthCheck verifies the aligner's external tools are invocable.
func (a *Aligner) HealthCheck(context.Context) stage.Health {
	const name = "map"
	if a.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if a.smalt == nil || a.samtools == nil {
		return stage.Unhealthy(name, "tool clients unavailable")
	}
	for _, binary := range []string{a.cfg.SmaltBinary(), a.cfg.SamtoolsBinary()} {
		if strings.TrimSpace(binary) == "" {
			return stage.Unhealthy(name, "tool binary not configured")
		}
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
		}
	}
	return stage.Healthy(name)
}
