package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeLLM()
	c.normalizeJobs()
	c.normalizeCoordinator()
	c.normalizeEvents()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		c.Paths.InboxDir = defaultInboxDir
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	if strings.TrimSpace(c.Transcription.Binary) == "" {
		c.Transcription.Binary = defaultTranscriptionBinary
	}
	if c.Transcription.TimeoutSeconds < 0 {
		c.Transcription.TimeoutSeconds = defaultTranscribeTimeout
	}
	if strings.TrimSpace(c.Transcription.Model) == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if strings.TrimSpace(c.Transcription.Language) == "" {
		c.Transcription.Language = defaultTranscriptionLanguage
	}
	if c.Transcription.UnloadAfterSeconds <= 0 {
		c.Transcription.UnloadAfterSeconds = defaultUnloadAfterSeconds
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = defaultJobMaxRetries
	}
	if c.Jobs.BackoffBaseSeconds <= 0 {
		c.Jobs.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Jobs.BackoffMaxSeconds <= 0 {
		c.Jobs.BackoffMaxSeconds = defaultBackoffMaxSeconds
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = defaultJobPollInterval
	}
	if c.Jobs.ErrorRetryInterval <= 0 {
		c.Jobs.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeCoordinator() {
	if c.Coordinator.MaxRunning <= 0 {
		c.Coordinator.MaxRunning = defaultMaxRunning
	}
	if c.Coordinator.RetentionSeconds <= 0 {
		c.Coordinator.RetentionSeconds = defaultRetentionSeconds
	}
	if c.Coordinator.ProgressBucketPercent <= 0 {
		c.Coordinator.ProgressBucketPercent = defaultProgressBucket
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.CleanupIntervalSeconds <= 0 {
		c.Events.CleanupIntervalSeconds = defaultCleanupInterval
	}
	if c.Events.CleanupThreshold <= 0 {
		c.Events.CleanupThreshold = defaultCleanupThreshold
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
