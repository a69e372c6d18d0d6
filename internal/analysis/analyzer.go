package analysis

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/counting"
	"ldseq/internal/logging"
	"ldseq/internal/sample"
	"ldseq/internal/services"
	"ldseq/internal/services/rscript"
	"ldseq/internal/stage"
)

const (
	name = "analyze"

	// ColDataName is the operator-edited design table.
	ColDataName = "colData.csv"
	// OutputDirName holds the DESeq2 results under the results dir.
	OutputDirName = "deseq2"
	// LogName collects R output under the workspace log dir.
	LogName = "deseq2.log"
)

// Analyzer wires the count matrix and the design table into the configured
// DESeq2 script.
type Analyzer struct {
	cfg    *config.Config
	logger *slog.Logger
	client rscript.Client
}

// New constructs an Analyzer with a CLI-backed Rscript client.
func New(cfg *config.Config, logger *slog.Logger) *Analyzer {
	return NewWithDependencies(cfg, logger,
		rscript.NewCLI(rscript.WithBinary(cfg.RscriptBinary())))
}

// NewWithDependencies allows injecting a custom client (used for tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, client rscript.Client) *Analyzer {
	analyzer := &Analyzer{
		cfg:    cfg,
		client: client,
	}
	analyzer.SetLogger(logger)
	return analyzer
}

// SetLogger updates the analyzer's logging destination while preserving
// component labeling.
func (a *Analyzer) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, name)
}

// ColDataPath returns the design table location.
func (a *Analyzer) ColDataPath() string {
	return filepath.Join(a.cfg.Paths.ResultsDir, ColDataName)
}

// CountsPath returns the reshaped count matrix location.
func (a *Analyzer) CountsPath() string {
	return filepath.Join(a.cfg.Paths.ResultsDir, counting.CountsName)
}

// OutputDir returns the directory the DESeq2 script writes into.
func (a *Analyzer) OutputDir() string {
	return filepath.Join(a.cfg.Paths.ResultsDir, OutputDirName)
}

// ColDataReport summarizes a template write.
type ColDataReport struct {
	Samples []string
	Path    string
	Written bool
}

// WriteColData renders the sample,condition template from the sorted BAM
// set. The condition column is left for the operator; an existing file is
// never overwritten unless force is set.
func (a *Analyzer) WriteColData(force bool) (*ColDataReport, error) {
	if err := a.cfg.EnsureWorkspaceDirs(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "create workspace directories", "", err)
	}

	bams, err := sample.DiscoverSorted(a.cfg.Paths.BamDir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, name, "list sorted bams", "", err)
	}
	report := &ColDataReport{Path: a.ColDataPath()}
	if len(bams) == 0 {
		return report, nil
	}
	for _, bam := range bams {
		report.Samples = append(report.Samples, sample.BaseFromSorted(bam))
	}

	if _, err := os.Stat(report.Path); err == nil && !force {
		return nil, services.Wrap(services.ErrValidation, name, "write colData",
			fmt.Sprintf("%s exists and may hold edited conditions; pass --force to overwrite", ColDataName), nil)
	}

	temp := artifact.TempPath(report.Path)
	file, err := os.Create(temp)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "create colData", "", err)
	}

	writer := csv.NewWriter(file)
	writeErr := writer.Write([]string{"sample", "condition"})
	for _, base := range report.Samples {
		if writeErr != nil {
			break
		}
		writeErr = writer.Write([]string{base, ""})
	}
	writer.Flush()
	if writeErr == nil {
		writeErr = writer.Error()
	}
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		artifact.Discard(temp)
		return nil, services.Wrap(services.ErrConfiguration, name, "write colData", "", writeErr)
	}
	if err := artifact.Replace(temp, report.Path); err != nil {
		artifact.Discard(temp)
		return nil, services.Wrap(services.ErrTransient, name, "promote colData", "", err)
	}

	report.Written = true
	a.logger.Info("wrote colData template",
		logging.String("path", report.Path),
		logging.Int("samples", len(report.Samples)))
	return report, nil
}

// Report summarizes one analysis delegation.
type Report struct {
	Script      string
	CountsPath  string
	ColDataPath string
	OutputDir   string
	Samples     int
	Duration    time.Duration
}

// Run checks every precondition the R script cannot report cleanly itself,
// then delegates to it.
func (a *Analyzer) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, a.logger)

	script := strings.TrimSpace(a.cfg.Analysis.Script)
	if script == "" {
		return nil, services.Wrap(services.ErrConfiguration, name, "resolve script",
			"set analysis.script to your DESeq2 R script", nil)
	}
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return nil, services.Wrap(services.ErrNotFound, name, "locate script", script, err)
	}

	if err := a.cfg.EnsureWorkspaceDirs(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "create workspace directories", "", err)
	}

	counts := a.CountsPath()
	if info, err := os.Stat(counts); err != nil || info.Size() == 0 {
		return nil, services.Wrap(services.ErrArtifactMissing, name, "locate count matrix",
			"run ldseq count first", err)
	}

	samples, err := a.readColData()
	if err != nil {
		return nil, err
	}

	outDir := a.OutputDir()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "create output directory", "", err)
	}

	logFile, err := artifact.AppendFile(filepath.Join(a.cfg.Paths.LogDir, LogName))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "open analysis log", "", err)
	}
	defer logFile.Close()

	logger.Info("running differential expression",
		logging.String("script", script),
		logging.Int("samples", len(samples)),
		logging.String("output", outDir))

	err = a.client.Run(ctx, rscript.RunRequest{
		Script: script,
		Args:   []string{counts, a.ColDataPath(), outDir},
		Log:    logFile,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, name, "run script",
			"check "+LogName+" for R output", err)
	}

	return &Report{
		Script:      script,
		CountsPath:  counts,
		ColDataPath: a.ColDataPath(),
		OutputDir:   outDir,
		Samples:     len(samples),
		Duration:    time.Since(start),
	}, nil
}

// readColData parses the design table and insists every condition is filled.
func (a *Analyzer) readColData() ([]string, error) {
	file, err := os.Open(a.ColDataPath())
	if err != nil {
		return nil, services.Wrap(services.ErrArtifactMissing, name, "open colData",
			"run ldseq coldata and fill the condition column", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "parse colData", "", err)
	}
	if len(records) == 0 || len(records[0]) < 2 || records[0][0] != "sample" || records[0][1] != "condition" {
		return nil, services.Wrap(services.ErrValidation, name, "parse colData",
			"expected a sample,condition header", nil)
	}
	if len(records) < 2 {
		return nil, services.Wrap(services.ErrValidation, name, "check colData",
			"design table has no samples", nil)
	}

	var samples []string
	for _, row := range records[1:] {
		if len(row) < 2 {
			return nil, services.Wrap(services.ErrValidation, name, "parse colData",
				fmt.Sprintf("row for %q has no condition column", strings.Join(row, ",")), nil)
		}
		if strings.TrimSpace(row[1]) == "" {
			return nil, services.Wrap(services.ErrValidation, name, "check colData",
				fmt.Sprintf("condition missing for sample %s; edit %s", row[0], ColDataName), nil)
		}
		samples = append(samples, row[0])
	}
	return samples, nil
}

// HealthCheck verifies the R interpreter is invocable.
func (a *Analyzer) HealthCheck(context.Context) stage.Health {
	if a.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	binary := a.cfg.RscriptBinary()
	if strings.TrimSpace(binary) == "" {
		return stage.Unhealthy(name, "tool binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
	}
	return stage.Healthy(name)
}
