package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"murmur/internal/jobs"
	"murmur/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Murmur Daemon", colorize)...)
			if daemonRunning(filepath.Join(cfg.Paths.LogDir, "murmurd.lock")) {
				lines = append(lines, renderStatusLine("Daemon", statusOK, "running", colorize))
			} else {
				lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
			}
			lines = append(lines, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
			lines = append(lines, renderStatusLine("Inbox", statusInfo, cfg.Paths.InboxDir, colorize))

			memoStore, err := ctx.openMemoStore()
			if err != nil {
				return err
			}
			defer memoStore.Close()
			count, err := memoStore.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count memos: %w", err)
			}
			lines = append(lines, renderStatusLine("Memos", statusInfo, fmt.Sprintf("%d", count), colorize))

			jobStore, err := ctx.openJobStore()
			if err != nil {
				return err
			}
			defer jobStore.Close()
			stats, err := jobStore.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("job stats: %w", err)
			}
			jobKind := statusInfo
			if stats[jobs.StatusFailed] > 0 {
				jobKind = statusWarn
			}
			lines = append(lines, renderStatusLine("Jobs", jobKind, formatJobStats(stats), colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Preflight", colorize)...)
			for _, check := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}

// daemonRunning probes the daemon's instance lock. Holding the lock briefly
// is safe: the daemon only takes it at startup.
func daemonRunning(lockPath string) bool {
	lk := flock.New(lockPath)
	acquired, err := lk.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = lk.Unlock()
		return false
	}
	return true
}

func formatJobStats(stats map[jobs.Status]int) string {
	return fmt.Sprintf("%d queued, %d processing, %d completed, %d failed",
		stats[jobs.StatusQueued],
		stats[jobs.StatusProcessing],
		stats[jobs.StatusCompleted],
		stats[jobs.StatusFailed],
	)
}
