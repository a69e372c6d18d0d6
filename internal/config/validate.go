package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateReference(); err != nil {
		return err
	}
	if err := c.validateCounting(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must not be empty")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must not be empty")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Threads < 1 {
		return fmt.Errorf("pipeline.threads must be at least 1, got %d", c.Pipeline.Threads)
	}
	if c.Pipeline.MaxJobs < 1 {
		return fmt.Errorf("pipeline.max_jobs must be at least 1, got %d", c.Pipeline.MaxJobs)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.Smalt == "" {
		return errors.New("tools.smalt must not be empty")
	}
	if c.Tools.Samtools == "" {
		return errors.New("tools.samtools must not be empty")
	}
	if c.Tools.FeatureCounts == "" {
		return errors.New("tools.featurecounts must not be empty")
	}
	if c.Tools.Rscript == "" {
		return errors.New("tools.rscript must not be empty")
	}
	return nil
}

func (c *Config) validateReference() error {
	if c.Reference.Dir == "" {
		return errors.New("reference.dir must not be empty")
	}
	if c.Reference.Prefix == "" {
		return errors.New("reference.prefix must not be empty")
	}
	return nil
}

func (c *Config) validateCounting() error {
	if c.Counting.MinQuality < 0 {
		return fmt.Errorf("counting.min_quality must not be negative, got %d", c.Counting.MinQuality)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 1 {
		return fmt.Errorf("notifications.request_timeout must be at least 1 second, got %d", c.Notifications.RequestTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging.retention_days must not be negative, got %d", c.Logging.RetentionDays)
	}
	return nil
}
