package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/omaremad10/nivuus-agent/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	exit       func(int)
}

func newRootCmd(exit func(int)) *cobra.Command {
	opts := &rootOptions{exit: exit}

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Interruptible terminal agent",
		Long:          "nivuus runs an autonomous agent in the terminal. It resumes from the conversation and memory saved in its data directory and saves them again after every turn and on interrupt.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to config.yaml (default: search standard locations)")
	pf.String("api-key", "", "completion API key (overrides "+config.APIKeyEnv+")")
	pf.String("model", "", "completion model")
	pf.String("data-dir", "", "directory for history, memory, checkpoints and logs")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newVersionCmd(),
		newCheckpointsCmd(opts),
		newResetCmd(opts),
	)
	return root
}

// loadConfig reads .env, the config file (or defaults when none
// exists), then applies environment and flag overrides.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: .env not loaded: %v\n", err)
	}

	var cfg *config.Config
	path, err := config.FindConfig(opts.configPath)
	switch {
	case errors.Is(err, config.ErrNoConfig):
		cfg, path = config.Default(), ""
	case err != nil:
		return nil, "", err
	default:
		if cfg, err = config.Load(path); err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
	}

	if err := config.Overlay(cmd.Flags(), cfg); err != nil {
		return nil, "", fmt.Errorf("config: %w", err)
	}
	return cfg, path, nil
}
