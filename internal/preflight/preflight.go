package preflight

import (
	"context"

	"murmur/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckFreeSpace("Data free space", cfg.Paths.DataDir, minFreeBytes))
	results = append(results, CheckBinary("Whisper binary", cfg.Transcription.Binary))

	if cfg.LLM.BaseURL != "" {
		results = append(results, CheckLLM(ctx, cfg.LLM))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
