package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/language"
	"murmur/internal/results"
)

func newMemosCommand(ctx *commandContext) *cobra.Command {
	memosCmd := &cobra.Command{
		Use:   "memos",
		Short: "List tracked voice memos",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openMemoStore()
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.All(cmd.Context())
			if err != nil {
				return fmt.Errorf("list memos: %w", err)
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No memos tracked yet.")
				return nil
			}

			rows := make([][]string, 0, len(all))
			for _, memo := range all {
				rows = append(rows, []string{
					shortID(memo.ID),
					memo.Title,
					formatDuration(memo.DurationSeconds),
					memo.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "TITLE", "DURATION", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	memosCmd.AddCommand(newMemoShowCommand(ctx))
	return memosCmd
}

func newMemoShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <memo-id>",
		Short: "Show a memo with its transcription and distill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openMemoStore()
			if err != nil {
				return err
			}
			defer store.Close()

			memo, err := resolveMemo(cmd, store, args[0])
			if err != nil {
				return err
			}

			recordStore, err := ctx.openRecordStore()
			if err != nil {
				return err
			}
			defer recordStore.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:    %s\n", memo.Title)
			fmt.Fprintf(out, "ID:       %s\n", memo.ID)
			fmt.Fprintf(out, "Audio:    %s\n", memo.AudioPath)
			fmt.Fprintf(out, "Created:  %s\n", memo.CreatedAt.Local().Format(time.RFC1123))

			transcripts := results.NewTranscriptionRepository(recordStore, nil)
			transcription, err := transcripts.Get(cmd.Context(), memo.ID)
			if err != nil {
				return fmt.Errorf("load transcription: %w", err)
			}
			if transcription.Language != "" {
				fmt.Fprintf(out, "\nTranscription (%s, %s):\n", transcription.State, language.DisplayName(transcription.Language))
			} else {
				fmt.Fprintf(out, "\nTranscription (%s):\n", transcription.State)
			}
			if transcription.Text != "" {
				fmt.Fprintln(out, transcription.Text)
			}

			analyses := results.NewAnalysisRepository(recordStore, nil)
			analysis, err := analyses.Get(cmd.Context(), memo.ID, "distill")
			if err != nil {
				return fmt.Errorf("load distill: %w", err)
			}
			if analysis != nil {
				fmt.Fprintf(out, "\nDistill (%s):\n%s\n", analysis.Model, analysis.Content)
			}
			return nil
		},
	}
}
