package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains workspace and state directory configuration.
//
// The workspace directories are resolved against WorkDir during
// normalization; relative values stay inside the workspace, absolute values
// are used as-is. The FASTQ directory is an input contract and is never
// created by ldseq; the remaining workspace directories are created by the
// run preflight.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	FastqDir   string `toml:"fastq_dir"`
	BamDir     string `toml:"bam_dir"`
	LogDir     string `toml:"log_dir"`
	ResultsDir string `toml:"results_dir"`
	StateDir   string `toml:"state_dir"`
}

// Pipeline contains scheduler and tool parallelism settings.
type Pipeline struct {
	Threads int `toml:"threads"`
	MaxJobs int `toml:"max_jobs"`
}

// Tools contains the external tool binary names or paths.
type Tools struct {
	Smalt         string `toml:"smalt"`
	Samtools      string `toml:"samtools"`
	FeatureCounts string `toml:"featurecounts"`
	Rscript       string `toml:"rscript"`
}

// Reference contains reference genome and aligner index configuration.
// An empty Dir resolves to a DB directory next to the ldseq executable.
type Reference struct {
	Dir    string `toml:"dir"`
	Prefix string `toml:"prefix"`
}

// Counting contains featureCounts invocation settings.
type Counting struct {
	MinQuality  int    `toml:"min_quality"`
	FeatureType string `toml:"feature_type"`
	Attribute   string `toml:"attribute"`
}

// Analysis contains differential expression delegation settings. Script is
// the operator-provided DESeq2 R script; the statistics live there, not here.
type Analysis struct {
	Script string `toml:"script"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunStarted     bool   `toml:"run_started"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for ldseq's own log output. Workspace tool
// logs under Logs/ are part of the output contract and are not affected.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Watch contains settings for the FASTQ directory watcher.
type Watch struct {
	DebounceSeconds int  `toml:"debounce_seconds"`
	Count           bool `toml:"count"`
}

// Config encapsulates all configuration values for ldseq.
//
// Configuration sections by subsystem:
//   - Paths: workspace layout and state directory
//   - Pipeline: per-tool thread count and concurrent sample bound
//   - Tools: external binary names (smalt, samtools, featureCounts, Rscript)
//   - Reference: genome/index location and file prefix
//   - Counting: featureCounts read counting settings
//   - Analysis: DESeq2 script delegation
//   - Notifications: ntfy push notification settings
//   - Logging: ldseq log format, level, and retention
//   - Watch: FASTQ watcher debounce
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Tools         Tools         `toml:"tools"`
	Reference     Reference     `toml:"reference"`
	Counting      Counting      `toml:"counting"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Watch         Watch         `toml:"watch"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ldseq/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized and all environment
// overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/ldseq/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ldseq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureStateDir creates the state directory that holds the run ledger,
// ldseq logs, and the run lock. Workspace directories are the run
// preflight's responsibility.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// EnsureWorkspaceDirs creates the output directories of the workspace. The
// FASTQ input directory is deliberately not created; its absence is a
// startup failure, not something to paper over.
func (c *Config) EnsureWorkspaceDirs() error {
	for _, dir := range []string{c.Paths.BamDir, c.Paths.LogDir, c.Paths.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SmaltBinary returns the smalt executable name.
func (c *Config) SmaltBinary() string {
	return c.Tools.Smalt
}

// SamtoolsBinary returns the samtools executable name.
func (c *Config) SamtoolsBinary() string {
	return c.Tools.Samtools
}

// FeatureCountsBinary returns the featureCounts executable name.
func (c *Config) FeatureCountsBinary() string {
	return c.Tools.FeatureCounts
}

// RscriptBinary returns the Rscript executable name.
func (c *Config) RscriptBinary() string {
	return c.Tools.Rscript
}

// GenomePath returns the reference genome FASTA path.
func (c *Config) GenomePath() string {
	return filepath.Join(c.Reference.Dir, c.Reference.Prefix+".fa")
}

// IndexPrefix returns the path prefix shared by the aligner index pair.
func (c *Config) IndexPrefix() string {
	return filepath.Join(c.Reference.Dir, c.Reference.Prefix)
}

// IndexPaths returns the two files of the aligner index pair.
func (c *Config) IndexPaths() (string, string) {
	prefix := c.IndexPrefix()
	return prefix + ".smi", prefix + ".sma"
}

// AnnotationPath returns the GTF annotation path used by read counting.
func (c *Config) AnnotationPath() string {
	return filepath.Join(c.Reference.Dir, c.Reference.Prefix+".gtf")
}

// LedgerPath returns the SQLite run ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "ldseq.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath expands a leading tilde and returns an absolute cleaned path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
