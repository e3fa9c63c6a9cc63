package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/omaremad10/nivuus-agent/internal/agent"
	"github.com/omaremad10/nivuus-agent/internal/buildinfo"
	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
	"github.com/omaremad10/nivuus-agent/internal/config"
	"github.com/omaremad10/nivuus-agent/internal/console"
	"github.com/omaremad10/nivuus-agent/internal/httpkit"
	"github.com/omaremad10/nivuus-agent/internal/llm"
	"github.com/omaremad10/nivuus-agent/internal/memory"
	"github.com/omaremad10/nivuus-agent/internal/paths"
	"github.com/omaremad10/nivuus-agent/internal/persist"
	"github.com/omaremad10/nivuus-agent/internal/prompts"
	"github.com/omaremad10/nivuus-agent/internal/search"
	"github.com/omaremad10/nivuus-agent/internal/tools"
)

// runAgent is the root command: load state, assemble the tool set and
// drive the turn loop until quit, interrupt or a fatal error.
func runAgent(cmd *cobra.Command, opts *rootOptions) (err error) {
	cfg, cfgPath, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := config.ValidateAPIKey(cfg.APIKey); err != nil {
		return fmt.Errorf("%w. Set %s, pass --api-key, or add api_key to the config file", err, config.APIKeyEnv)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, logFile, err := config.OpenLogFile(cfg.LogPath(), level)
	if err != nil {
		return err
	}
	defer logFile.Close()

	runID := ulid.Make().String()
	logger = logger.With("run_id", runID)
	logger.Info("starting",
		"build", buildinfo.String(),
		"config", cfgPath,
		"data_dir", cfg.DataDir,
		"model", cfg.Model,
	)

	var journal persist.Journal
	var status *checkpoint.StartupStatus
	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.Open(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("open checkpoint journal: %w", err)
		}
		defer store.Close()
		j := checkpoint.NewJournal(store, runID, cfg.Checkpoint.Keep, logger)
		if status, err = j.GetStartupStatus(); err != nil {
			logger.Warn("checkpoint status unavailable", "error", err)
		}
		journal = j
	}

	mgr := persist.New(cfg.HistoryPath(), cfg.MemoryPath(), journal, logger)
	history, mem, err := mgr.Load(prompts.SystemPrompt(binaryName), cfg.Memory.MaxActionLog)
	if err != nil {
		return err
	}

	stopSignals := mgr.HandleSignals(opts.exit)
	defer stopSignals()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic", "value", r)
			mgr.Shutdown(checkpoint.TriggerPanic)
			err = fmt.Errorf("unrecovered panic: %v", r)
		}
	}()

	term := console.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	registry, err := buildRegistry(cfg, term, mem, logger)
	if err != nil {
		return err
	}

	printBanner(cmd.OutOrStdout(), cfg, history, mem, status)

	client := llm.NewOpenAIClient(cfg.BaseURL, cfg.APIKey, logger,
		httpkit.WithUserAgent(buildinfo.UserAgent()),
	)
	loop := agent.New(agent.Config{
		Model:          cfg.Model,
		MaxToolRounds:  cfg.Agent.MaxToolRounds,
		SummaryActions: cfg.Agent.SummaryActions,
		MaxRetryWait:   time.Duration(cfg.Agent.MaxRetryWaitSec) * time.Second,
	}, agent.Deps{
		Client:   client,
		Registry: registry,
		History:  history,
		Memory:   mem,
		Persist:  mgr,
		Console:  term,
		Logger:   logger,
	})

	err = loop.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildRegistry assembles the tools the model may call.
func buildRegistry(cfg *config.Config, term *console.Terminal, mem *memory.Memory, logger *slog.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	shell := tools.NewShellExec(tools.ShellExecConfig{
		WorkingDir:     cfg.ShellExec.WorkingDir,
		DeniedCmds:     cfg.ShellExec.DeniedPatterns,
		DefaultTimeout: time.Duration(cfg.ShellExec.TimeoutSec) * time.Second,
		MaxOutputBytes: cfg.ShellExec.MaxOutputBytes,
	}, term, mem, logger)

	files := tools.NewFileTools(paths.New(map[string]string{"data": cfg.DataDir}), cfg.Files.MaxReadBytes, term, mem, logger)

	all := []*tools.Tool{shell.Tool()}
	all = append(all, files.Tools()...)
	all = append(all, tools.NewMemoryTools(mem).Tools()...)
	all = append(all, webSearchTool(cfg, mem, logger), tools.AskUserTool(term, mem))

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	logger.Debug("tools registered", "tools", reg.Names())
	return reg, nil
}

func webSearchTool(cfg *config.Config, mem *memory.Memory, logger *slog.Logger) *tools.Tool {
	timeout := time.Duration(cfg.Search.TimeoutSec) * time.Second
	mgr := search.NewManager(cfg.Search.Provider)
	mgr.Register(search.NewDuckDuckGo(cfg.Search.Endpoint, cfg.Search.MaxResults, timeout))
	if cfg.Search.SearXNGURL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNGURL, cfg.Search.MaxResults, timeout,
			httpkit.WithUserAgent(buildinfo.UserAgent()),
		))
	}
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web and return the top results with title, snippet and URL.",
		Parameters:  search.ToolDefinition(),
		Handler:     search.ToolHandler(mgr, mem, logger),
	}
}

func printBanner(w io.Writer, cfg *config.Config, history *memory.History, mem *memory.Memory, status *checkpoint.StartupStatus) {
	fmt.Fprintf(w, "%s agent started (model %s)\n", binaryName, cfg.Model)
	fmt.Fprintf(w, "State: %s (%d turns, %d actions)\n", cfg.DataDir, history.Len(), mem.ActionCount())
	if status != nil && status.Latest != nil {
		fmt.Fprintf(w, "Checkpoints: %d, latest %s at %s\n",
			status.Count,
			status.Latest.ID.String()[:8],
			status.Latest.CreatedAt.Local().Format(time.DateTime),
		)
	}
	fmt.Fprintf(w, "Answer \"quit\" to any question to exit. Ctrl+C saves and exits.\n\n")
}
