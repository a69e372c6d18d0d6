package reference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ldseq/internal/artifact"
	"ldseq/internal/config"
	"ldseq/internal/logging"
	"ldseq/internal/services"
	"ldseq/internal/services/smalt"
)

// Index build parameters for the smalt hash table.
const (
	WordLength = 13
	StepSize   = 2
)

// IndexLogName is the workspace log file that captures index build output.
const IndexLogName = "smalt.index.log"

// Manager ensures the reference genome and its index are usable before any
// alignment starts.
type Manager struct {
	genome string
	prefix string
	smi    string
	sma    string
	logDir string
	client smalt.Client
	logger *slog.Logger
}

// NewManager constructs a Manager from resolved configuration.
func NewManager(cfg *config.Config, client smalt.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	smi, sma := cfg.IndexPaths()
	return &Manager{
		genome: cfg.GenomePath(),
		prefix: cfg.IndexPrefix(),
		smi:    smi,
		sma:    sma,
		logDir: cfg.Paths.LogDir,
		client: client,
		logger: logging.NewComponentLogger(logger, "reference"),
	}
}

// IndexPrefix returns the path prefix alignment commands address the index by.
func (m *Manager) IndexPrefix() string {
	return m.prefix
}

// Ensure verifies the genome exists and that both index files are present,
// non-empty, and at least as new as the genome, building them when not.
func (m *Manager) Ensure(ctx context.Context) error {
	info, err := os.Stat(m.genome)
	if err != nil || info.IsDir() {
		return services.Wrap(services.ErrNotFound, "reference", "locate genome",
			fmt.Sprintf("reference genome %s is missing; provision the FASTA before running", m.genome), err)
	}

	if artifact.Fresh(m.smi, m.genome) && artifact.Fresh(m.sma, m.genome) {
		m.logger.Debug("reference index up to date", logging.String("prefix", m.prefix))
		return nil
	}

	m.logger.Info("building reference index",
		logging.String("genome", m.genome),
		logging.String("prefix", m.prefix))

	logFile, err := artifact.AppendFile(filepath.Join(m.logDir, IndexLogName))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "reference", "open index log", "", err)
	}
	defer logFile.Close()

	buildErr := m.client.Index(ctx, smalt.IndexRequest{
		Prefix:     m.prefix,
		Genome:     m.genome,
		WordLength: WordLength,
		StepSize:   StepSize,
		Log:        logFile,
	})
	if buildErr != nil {
		return services.Wrap(services.ErrExternalTool, "reference", "build index",
			"check "+IndexLogName+" for tool output", buildErr)
	}

	for _, path := range []string{m.smi, m.sma} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return services.Wrap(services.ErrExternalTool, "reference", "verify index",
				fmt.Sprintf("index build finished but %s is missing or empty", filepath.Base(path)), err)
		}
	}

	m.logger.Info("reference index built", logging.String("prefix", m.prefix))
	return nil
}
