package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List background generation jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJobStore()
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.AllJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(all))
			for _, job := range all {
				rows = append(rows, []string{
					shortID(job.MemoID),
					string(job.Kind),
					string(job.Status),
					fmt.Sprintf("%d", job.RetryCount),
					string(job.FailureReason),
					formatNextRetry(job.NextRetryAt),
					job.UpdatedAt.Local().Format("15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"MEMO", "KIND", "STATUS", "RETRIES", "REASON", "NEXT RETRY", "UPDATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <memo-id> <kind>",
		Short: "Retry a failed job immediately, skipping its backoff window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := jobs.ParseKind(strings.TrimSpace(args[1]))
			if !ok {
				return fmt.Errorf("unknown job kind %q (expected title or distill)", args[1])
			}

			memoStore, err := ctx.openMemoStore()
			if err != nil {
				return err
			}
			defer memoStore.Close()

			memo, err := resolveMemo(cmd, memoStore, args[0])
			if err != nil {
				return err
			}

			store, err := ctx.openJobStore()
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.RetryNow(cmd.Context(), memo.ID, kind)
			if err != nil {
				if errors.Is(err, jobs.ErrNotFound) {
					return fmt.Errorf("no %s job for memo %s", kind, shortID(memo.ID))
				}
				if errors.Is(err, jobs.ErrInvalidTransition) {
					return fmt.Errorf("%s job for memo %s is not failed", kind, shortID(memo.ID))
				}
				return fmt.Errorf("retry job: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s job for %q; the daemon will pick it up on its next poll.\n",
				job.Kind, memo.Title)
			return nil
		},
	}
}

func formatNextRetry(at *time.Time) string {
	if at == nil {
		return ""
	}
	remaining := time.Until(*at)
	if remaining <= 0 {
		return "due"
	}
	return fmt.Sprintf("in %s", remaining.Round(time.Second))
}
