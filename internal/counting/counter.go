package counting

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/logging"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/featurecounts"
	"ldseq/internal/stage"
)

const (
	name = "count"

	// RawCountsName is the featureCounts table as the tool writes it.
	RawCountsName = "counts_raw.tsv"
	// CountsName is the reshaped matrix consumed by the analysis step.
	CountsName = "counts.tsv"
	// LogName collects featureCounts output under the workspace log dir.
	LogName = "featureCounts.log"

	// featureCounts drops a run summary beside the table it writes.
	summarySuffix = ".summary"

	// Columns between Geneid and the first sample: Chr, Start, End,
	// Strand, Length.
	annotationColumns = 5
)

// Counter builds the gene count matrix from every sorted BAM in the
// workspace.
type Counter struct {
	cfg    *config.Config
	logger *slog.Logger
	client featurecounts.Client
}

// New constructs a Counter with a CLI-backed featureCounts client.
func New(cfg *config.Config, logger *slog.Logger) *Counter {
	return NewWithDependencies(cfg, logger,
		featurecounts.NewCLI(featurecounts.WithBinary(cfg.FeatureCountsBinary())))
}

// NewWithDependencies allows injecting a custom client (used for tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, client featurecounts.Client) *Counter {
	counter := &Counter{
		cfg:    cfg,
		client: client,
	}
	counter.SetLogger(logger)
	return counter
}

// SetLogger updates the counter's logging destination while preserving
// component labeling.
func (c *Counter) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, name)
}

// RawPath returns the location of the unreshaped featureCounts table.
func (c *Counter) RawPath() string {
	return filepath.Join(c.cfg.Paths.ResultsDir, RawCountsName)
}

// CountsPath returns the location of the reshaped count matrix.
func (c *Counter) CountsPath() string {
	return filepath.Join(c.cfg.Paths.ResultsDir, CountsName)
}

// Report summarizes one counting pass.
type Report struct {
	BAMs       []string
	Genes      int
	Counted    bool
	Reshaped   bool
	RawPath    string
	CountsPath string
	Duration   time.Duration
}

// Run counts reads over every sorted BAM and reshapes the result. An empty
// BAM set is not an error; the report simply carries no inputs.
func (c *Counter) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, c.logger)

	if err := c.cfg.EnsureWorkspaceDirs(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "create workspace directories", "", err)
	}

	bams, err := sample.DiscoverSorted(c.cfg.Paths.BamDir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, name, "list sorted bams", "", err)
	}
	report := &Report{BAMs: bams, RawPath: c.RawPath(), CountsPath: c.CountsPath()}
	if len(bams) == 0 {
		logger.Info("no sorted bams to count", logging.String("dir", c.cfg.Paths.BamDir))
		report.Duration = time.Since(start)
		return report, nil
	}

	annotation := c.cfg.AnnotationPath()
	if info, err := os.Stat(annotation); err != nil || info.Size() == 0 {
		return nil, services.Wrap(services.ErrNotFound, name, "locate annotation",
			fmt.Sprintf("place %s in the reference directory", filepath.Base(annotation)), err)
	}

	counted, err := c.count(ctx, logger, bams, annotation)
	if err != nil {
		return nil, err
	}
	report.Counted = counted

	reshaped, genes, err := c.reshape(logger)
	if err != nil {
		return nil, err
	}
	report.Reshaped = reshaped
	report.Genes = genes

	report.Duration = time.Since(start)
	return report, nil
}

func (c *Counter) count(ctx context.Context, logger *slog.Logger, bams []string, annotation string) (bool, error) {
	inputs := append(append([]string(nil), bams...), annotation)
	if artifact.Fresh(c.RawPath(), inputs...) {
		logger.Info("count matrix fresh, skipping featureCounts",
			logging.String("output", c.RawPath()))
		return false, nil
	}

	logFile, err := artifact.AppendFile(filepath.Join(c.cfg.Paths.LogDir, LogName))
	if err != nil {
		return false, services.Wrap(services.ErrConfiguration, name, "open featureCounts log", "", err)
	}
	defer logFile.Close()

	temp := artifact.TempPath(c.RawPath())
	logger.Info("counting reads",
		logging.Int("bams", len(bams)),
		logging.Int("threads", c.cfg.Pipeline.Threads),
		logging.Int("min_quality", c.cfg.Counting.MinQuality))

	err = c.client.Count(ctx, featurecounts.CountRequest{
		Annotation:  annotation,
		Output:      temp,
		Threads:     c.cfg.Pipeline.Threads,
		MinQuality:  c.cfg.Counting.MinQuality,
		FeatureType: c.cfg.Counting.FeatureType,
		Attribute:   c.cfg.Counting.Attribute,
		BAMs:        bams,
		Log:         logFile,
	})
	if err != nil {
		artifact.Discard(temp)
		artifact.Discard(temp + summarySuffix)
		return false, services.Wrap(services.ErrExternalTool, name, "featureCounts",
			"check "+LogName+" for tool output", err)
	}

	if info, err := os.Stat(temp); err != nil || info.Size() == 0 {
		artifact.Discard(temp)
		artifact.Discard(temp + summarySuffix)
		return false, services.Wrap(services.ErrExternalTool, name, "verify counts",
			"featureCounts produced no table", err)
	}

	// The summary lands under the temp name; move it alongside the table.
	if _, err := os.Stat(temp + summarySuffix); err == nil {
		if err := artifact.Replace(temp+summarySuffix, c.RawPath()+summarySuffix); err != nil {
			logger.Warn("could not promote counts summary", logging.Error(err))
		}
	}
	if err := artifact.Replace(temp, c.RawPath()); err != nil {
		artifact.Discard(temp)
		return false, services.Wrap(services.ErrTransient, name, "promote counts", "", err)
	}
	return true, nil
}

func (c *Counter) reshape(logger *slog.Logger) (bool, int, error) {
	if artifact.Fresh(c.CountsPath(), c.RawPath()) {
		logger.Info("reshaped matrix fresh, skipping",
			logging.String("output", c.CountsPath()))
		return false, 0, nil
	}

	genes, err := writeReshaped(c.RawPath(), c.CountsPath())
	if err != nil {
		return false, 0, err
	}
	logger.Info("reshaped count matrix",
		logging.String("output", c.CountsPath()),
		logging.Int("genes", genes))
	return true, genes, nil
}

func writeReshaped(rawPath, outPath string) (int, error) {
	in, err := os.Open(rawPath)
	if err != nil {
		return 0, services.Wrap(services.ErrArtifactMissing, name, "open raw counts", "", err)
	}
	defer in.Close()

	temp := artifact.TempPath(outPath)
	out, err := os.Create(temp)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, name, "create reshaped counts", "", err)
	}

	genes, reshapeErr := reshapeTable(in, out)
	if closeErr := out.Close(); reshapeErr == nil {
		reshapeErr = closeErr
	}
	if reshapeErr != nil {
		artifact.Discard(temp)
		return 0, reshapeErr
	}

	if err := artifact.Replace(temp, outPath); err != nil {
		artifact.Discard(temp)
		return 0, services.Wrap(services.ErrTransient, name, "promote reshaped counts", "", err)
	}
	return genes, nil
}

// reshapeTable copies a featureCounts table, keeping only the gene id and
// the per-sample count columns. Sample headers lose their directory prefix
// and the .sorted.bam suffix. Returns the number of gene rows written.
func reshapeTable(in io.Reader, out io.Writer) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(out)

	headerDone := false
	genes := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < annotationColumns+2 {
			return 0, services.Wrap(services.ErrValidation, name, "parse raw counts",
				fmt.Sprintf("row has %d columns, expected at least %d", len(fields), annotationColumns+2), nil)
		}

		if !headerDone {
			if fields[0] != "Geneid" {
				return 0, services.Wrap(services.ErrValidation, name, "parse raw counts",
					fmt.Sprintf("unexpected header column %q", fields[0]), nil)
			}
			cells := make([]string, 0, len(fields)-annotationColumns)
			cells = append(cells, fields[0])
			for _, column := range fields[annotationColumns+1:] {
				cells = append(cells, sample.BaseFromSorted(column))
			}
			if _, err := writer.WriteString(strings.Join(cells, "\t") + "\n"); err != nil {
				return 0, err
			}
			headerDone = true
			continue
		}

		genes++
		cells := append([]string{fields[0]}, fields[annotationColumns+1:]...)
		if _, err := writer.WriteString(strings.Join(cells, "\t") + "\n"); err != nil {
			return 0, err
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read raw counts: %w", err)
	}
	if !headerDone {
		return 0, services.Wrap(services.ErrValidation, name, "parse raw counts", "table has no header", nil)
	}
	return genes, writer.Flush()
}

// HealthCheck verifies the counting tool is invocable.
func (c *Counter) HealthCheck(context.Context) stage.Health {
	if c.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	binary := c.cfg.FeatureCountsBinary()
	if strings.TrimSpace(binary) == "" {
		return stage.Unhealthy(name, "tool binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(name)
}
