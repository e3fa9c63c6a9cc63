package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
	"github.com/omaremad10/nivuus-agent/internal/config"
	"github.com/omaremad10/nivuus-agent/internal/persist"
	"github.com/omaremad10/nivuus-agent/internal/prompts"
)

func newCheckpointsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and restore saved state snapshots",
	}
	cmd.AddCommand(newCheckpointsListCmd(opts), newCheckpointsRestoreCmd(opts))
	return cmd
}

func newCheckpointsListCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				_, err := fmt.Fprintln(out, "No checkpoints.")
				return err
			}
			for _, cp := range list {
				if _, err := fmt.Fprintln(out, cp.Summary()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of checkpoints to show")
	return cmd
}

func newCheckpointsRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Write a checkpoint back to the history and memory documents",
		Long:  "restore replaces the saved conversation and memory with a checkpoint. The current state is checkpointed first, so a restore can itself be undone. The id may be any unique prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, closeLog, err := commandLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog.Close()

			store, err := checkpoint.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer store.Close()

			cp, err := store.Find(args[0])
			if err != nil {
				return err
			}

			journal := checkpoint.NewJournal(store, ulid.Make().String(), cfg.Checkpoint.Keep, logger)
			mgr := persist.New(cfg.HistoryPath(), cfg.MemoryPath(), journal, logger)
			if _, _, err := mgr.Load(prompts.SystemPrompt(binaryName), cfg.Memory.MaxActionLog); err != nil {
				return err
			}
			if err := mgr.Flush(checkpoint.TriggerRestore); err != nil {
				return fmt.Errorf("checkpoint current state: %w", err)
			}
			if err := mgr.WriteState(cp.State); err != nil {
				return err
			}

			logger.Info("checkpoint restored", "id", cp.ID, "trigger", cp.Trigger)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", cp.Summary())
			return err
		},
	}
}

// commandLogger opens the log file for subcommands that change state.
func commandLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return config.OpenLogFile(cfg.LogPath(), level)
}
