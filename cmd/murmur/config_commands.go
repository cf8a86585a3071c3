package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/config"
	"murmur/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if force {
				if err := os.Remove(expanded); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.WriteSample(expanded); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", expanded)
			fmt.Fprintln(out, "Edit the file to set llm.api_key (or export MURMUR_LLM_API_KEY) before running murmurd.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "output", "o", "", "Destination path for the sample config")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inbox directory:   %s\n", cfg.Paths.InboxDir)
			fmt.Fprintf(out, "Data directory:    %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Log directory:     %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Database:          %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Whisper binary:    %s (model %s, language %s)\n",
				cfg.Transcription.Binary, cfg.Transcription.Model, cfg.Transcription.Language)
			fmt.Fprintf(out, "LLM endpoint:      %s (model %s)\n", cfg.LLM.BaseURL, cfg.LLM.Model)
			fmt.Fprintf(out, "LLM key set:       %t\n", cfg.LLM.APIKey != "")
			fmt.Fprintf(out, "Job retries:       %d (backoff %ds base, %ds cap)\n",
				cfg.Jobs.MaxRetries, cfg.Jobs.BackoffBaseSeconds, cfg.Jobs.BackoffMaxSeconds)
			if cfg.Notifications.NtfyTopic != "" {
				fmt.Fprintf(out, "Notifications:     %s\n", cfg.Notifications.NtfyTopic)
			} else {
				fmt.Fprintln(out, "Notifications:     disabled")
			}
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run preflight checks against the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			checks := preflight.RunAll(cmd.Context(), cfg)
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			if !preflight.AllPassed(checks) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}
}
