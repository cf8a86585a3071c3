package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateCoordinator(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.InboxDir == "" {
		return errors.New("paths.inbox_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.InboxDir == c.Paths.DataDir {
		return errors.New("paths.inbox_dir and paths.data_dir must differ")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.BackoffMaxSeconds < c.Jobs.BackoffBaseSeconds {
		return fmt.Errorf("jobs.backoff_max_seconds (%d) must be at least jobs.backoff_base_seconds (%d)",
			c.Jobs.BackoffMaxSeconds, c.Jobs.BackoffBaseSeconds)
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	if c.Coordinator.ProgressBucketPercent > 100 {
		return errors.New("coordinator.progress_bucket_percent must not exceed 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
