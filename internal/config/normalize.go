package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeTools()
	if err := c.normalizeReference(); err != nil {
		return err
	}
	c.normalizeCounting()
	if err := c.normalizeAnalysis(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeWatch()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.FastqDir, err = resolveWorkspaceDir(c.Paths.WorkDir, c.Paths.FastqDir, defaultFastqDir); err != nil {
		return fmt.Errorf("paths.fastq_dir: %w", err)
	}
	if c.Paths.BamDir, err = resolveWorkspaceDir(c.Paths.WorkDir, c.Paths.BamDir, defaultBamDir); err != nil {
		return fmt.Errorf("paths.bam_dir: %w", err)
	}
	if c.Paths.LogDir, err = resolveWorkspaceDir(c.Paths.WorkDir, c.Paths.LogDir, defaultLogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ResultsDir, err = resolveWorkspaceDir(c.Paths.WorkDir, c.Paths.ResultsDir, defaultResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

// resolveWorkspaceDir anchors relative directory names inside the workspace
// while leaving absolute and tilde paths alone.
func resolveWorkspaceDir(workDir, value, fallback string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	if filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "~") {
		return expandPath(trimmed)
	}
	return filepath.Join(workDir, trimmed), nil
}

func (c *Config) normalizePipeline() error {
	if err := envOverrideInt("LDSEQ_THREADS", &c.Pipeline.Threads); err != nil {
		return err
	}
	if err := envOverrideInt("LDSEQ_MAX_JOBS", &c.Pipeline.MaxJobs); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Smalt = strings.TrimSpace(c.Tools.Smalt)
	if c.Tools.Smalt == "" {
		c.Tools.Smalt = defaultSmaltBinary
	}
	c.Tools.Samtools = strings.TrimSpace(c.Tools.Samtools)
	if c.Tools.Samtools == "" {
		c.Tools.Samtools = defaultSamtoolsBinary
	}
	c.Tools.FeatureCounts = strings.TrimSpace(c.Tools.FeatureCounts)
	if c.Tools.FeatureCounts == "" {
		c.Tools.FeatureCounts = defaultFeatureCounts
	}
	c.Tools.Rscript = strings.TrimSpace(c.Tools.Rscript)
	if c.Tools.Rscript == "" {
		c.Tools.Rscript = defaultRscriptBinary
	}
	envOverrideString("LDSEQ_SMALT", &c.Tools.Smalt)
	envOverrideString("LDSEQ_SAMTOOLS", &c.Tools.Samtools)
	envOverrideString("LDSEQ_FEATURECOUNTS", &c.Tools.FeatureCounts)
	envOverrideString("LDSEQ_RSCRIPT", &c.Tools.Rscript)
}

func (c *Config) normalizeReference() error {
	envOverrideString("LDSEQ_DB_DIR", &c.Reference.Dir)
	c.Reference.Dir = strings.TrimSpace(c.Reference.Dir)
	if c.Reference.Dir == "" {
		dir, err := executableDBDir()
		if err != nil {
			return fmt.Errorf("reference.dir: %w", err)
		}
		c.Reference.Dir = dir
	}
	var err error
	if c.Reference.Dir, err = expandPath(c.Reference.Dir); err != nil {
		return fmt.Errorf("reference.dir: %w", err)
	}
	c.Reference.Prefix = strings.TrimSpace(c.Reference.Prefix)
	if c.Reference.Prefix == "" {
		c.Reference.Prefix = defaultReferencePrefix
	}
	return nil
}

// executableDBDir resolves the default reference location: a DB directory
// beside the ldseq binary, not the current working directory.
func executableDBDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "DB"), nil
}

func (c *Config) normalizeCounting() {
	c.Counting.FeatureType = strings.TrimSpace(c.Counting.FeatureType)
	if c.Counting.FeatureType == "" {
		c.Counting.FeatureType = defaultFeatureType
	}
	c.Counting.Attribute = strings.TrimSpace(c.Counting.Attribute)
	if c.Counting.Attribute == "" {
		c.Counting.Attribute = defaultAttribute
	}
}

func (c *Config) normalizeAnalysis() error {
	c.Analysis.Script = strings.TrimSpace(c.Analysis.Script)
	if c.Analysis.Script == "" {
		return nil
	}
	var err error
	if c.Analysis.Script, err = expandPath(c.Analysis.Script); err != nil {
		return fmt.Errorf("analysis.script: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "console", "json":
		c.Logging.Format = format
	case "":
		c.Logging.Format = defaultLogFormat
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = defaultDebounceSeconds
	}
}

func envOverrideString(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			*target = trimmed
		}
	}
}

func envOverrideInt(key string, target *int) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*target = parsed
	return nil
}
