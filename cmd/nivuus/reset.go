package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omaremad10/nivuus-agent/internal/console"
	"github.com/omaremad10/nivuus-agent/internal/persist"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Move the saved conversation and memory aside",
		Long:  "reset renames the history and memory documents with a .reset-<timestamp> suffix so the next run starts fresh. Checkpoints are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !yes {
				term := console.NewTerminal(cmd.InOrStdin(), out)
				ok, err := term.Confirm(cmd.Context(), fmt.Sprintf("Move the saved state in %s aside?", cfg.DataDir))
				if err != nil {
					return err
				}
				if !ok {
					_, err := fmt.Fprintln(out, "Reset cancelled.")
					return err
				}
			}

			mgr := persist.New(cfg.HistoryPath(), cfg.MemoryPath(), nil, nil)
			moved, err := mgr.Reset()
			if err != nil {
				return err
			}
			if len(moved) == 0 {
				_, err := fmt.Fprintln(out, "Nothing to reset.")
				return err
			}
			for _, p := range moved {
				if _, err := fmt.Fprintf(out, "Moved to %s\n", p); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
