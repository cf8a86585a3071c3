package main

import (
	"strings"
	"sync"

	"murmur/internal/config"
	"murmur/internal/jobs"
	"murmur/internal/memos"
	"murmur/internal/results"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// The CLI reads the daemon's SQLite database directly: SQLite's WAL mode plus
// the busy timeout make cross-process reads and the occasional idempotent
// write (job retries) safe without a control socket.
func (c *commandContext) openMemoStore() (*memos.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return memos.Open(cfg.DatabasePath())
}

func (c *commandContext) openJobStore() (*jobs.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.Open(cfg.DatabasePath())
}

func (c *commandContext) openRecordStore() (*results.SQLiteStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return results.OpenSQLiteStore(cfg.DatabasePath())
}
