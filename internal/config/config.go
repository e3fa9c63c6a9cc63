// Package config handles nivuus-agent configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omaremad10/nivuus-agent/internal/paths"
)

// Default configuration values.
const (
	DefaultModel           = "gpt-4.1"
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultMaxActionLog    = 30
	DefaultMaxToolRounds   = 25
	DefaultSummaryActions  = 5
	DefaultMaxRetryWait    = 30
	DefaultCommandTimeout  = 120
	DefaultMaxOutputBytes  = 40000
	DefaultMaxReadBytes    = 100 * 1024
	DefaultMaxSearchResult = 5
	DefaultSearchTimeout   = 15
	DefaultSearchEndpoint  = "https://html.duckduckgo.com/html/"
	DefaultSearchProvider  = "duckduckgo"
	DefaultCheckpointKeep  = 20
)

// ErrNoConfig is returned by [FindConfig] when no explicit path was
// given and none of the search paths exist. Callers fall back to
// [Default].
var ErrNoConfig = errors.New("no config file found")

// DefaultDataDir is where the durable documents live unless data_dir
// says otherwise.
func DefaultDataDir() string {
	return paths.ExpandHome("~/.config/nivuus-agent")
}

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/nivuus-agent/config.yaml,
// /etc/nivuus-agent/config.yaml.
func DefaultSearchPaths() []string {
	p := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		p = append(p, filepath.Join(home, ".config", "nivuus-agent", "config.yaml"))
	}

	p = append(p, "/etc/nivuus-agent/config.yaml")
	return p
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of [DefaultSearchPaths] is returned,
// or [ErrNoConfig].
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Config holds all agent configuration.
type Config struct {
	Model      string           `yaml:"model"`
	APIKey     string           `yaml:"api_key"`
	BaseURL    string           `yaml:"base_url"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	ShellExec  ShellExecConfig  `yaml:"shell_exec"`
	Files      FilesConfig      `yaml:"files"`
	Search     SearchConfig     `yaml:"search"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// MemoryConfig bounds the agent memory document.
type MemoryConfig struct {
	// MaxActionLog is the action log capacity; the oldest entry is
	// evicted first.
	MaxActionLog int `yaml:"max_action_log"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	// MaxToolRounds caps consecutive completion/dispatch cycles within
	// one user turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// SummaryActions is how many recent action-log entries the memory
	// summary shows the model.
	SummaryActions int `yaml:"summary_actions"`
	// MaxRetryWaitSec caps how long a rate-limited turn waits before
	// retrying, whatever the server's Retry-After says.
	MaxRetryWaitSec int `yaml:"max_retry_wait_sec"`
}

// ShellExecConfig defines shell execution limits.
type ShellExecConfig struct {
	TimeoutSec     int      `yaml:"timeout_sec"`
	MaxOutputBytes int      `yaml:"max_output_bytes"`
	DeniedPatterns []string `yaml:"denied_patterns"`
	WorkingDir     string   `yaml:"working_dir"`
}

// FilesConfig limits direct file access.
type FilesConfig struct {
	MaxReadBytes int64 `yaml:"max_read_bytes"`
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	// Provider is "duckduckgo" or "searxng".
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	SearXNGURL string `yaml:"searxng_url"`
	MaxResults int    `yaml:"max_results"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CheckpointConfig controls the SQLite snapshot journal.
type CheckpointConfig struct {
	Enabled bool `yaml:"enabled"`
	// Keep is how many snapshots survive pruning.
	Keep int `yaml:"keep"`
}

// Load reads a YAML config file, expanding ${VAR} references against the
// environment, and fills unset fields from [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config with every field populated.
func Default() *Config {
	return &Config{
		Model:    DefaultModel,
		BaseURL:  DefaultBaseURL,
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Memory:   MemoryConfig{MaxActionLog: DefaultMaxActionLog},
		Agent: AgentConfig{
			MaxToolRounds:   DefaultMaxToolRounds,
			SummaryActions:  DefaultSummaryActions,
			MaxRetryWaitSec: DefaultMaxRetryWait,
		},
		ShellExec: ShellExecConfig{
			TimeoutSec:     DefaultCommandTimeout,
			MaxOutputBytes: DefaultMaxOutputBytes,
			DeniedPatterns: []string{
				"rm -rf /",
				"rm -rf /*",
				"mkfs",
				"dd if=/dev/zero of=/dev/sd",
				":(){ :|:& };:",
			},
		},
		Files: FilesConfig{MaxReadBytes: DefaultMaxReadBytes},
		Search: SearchConfig{
			Provider:   DefaultSearchProvider,
			Endpoint:   DefaultSearchEndpoint,
			MaxResults: DefaultMaxSearchResult,
			TimeoutSec: DefaultSearchTimeout,
		},
		Checkpoint: CheckpointConfig{Enabled: true, Keep: DefaultCheckpointKeep},
	}
}

// applyDefaults fills zero values left behind by a partial YAML
// document that explicitly blanked a field.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	c.DataDir = paths.ExpandHome(c.DataDir)
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Memory.MaxActionLog == 0 {
		c.Memory.MaxActionLog = d.Memory.MaxActionLog
	}
	if c.Agent.MaxToolRounds == 0 {
		c.Agent.MaxToolRounds = d.Agent.MaxToolRounds
	}
	if c.Agent.SummaryActions == 0 {
		c.Agent.SummaryActions = d.Agent.SummaryActions
	}
	if c.Agent.MaxRetryWaitSec == 0 {
		c.Agent.MaxRetryWaitSec = d.Agent.MaxRetryWaitSec
	}
	if c.ShellExec.TimeoutSec == 0 {
		c.ShellExec.TimeoutSec = d.ShellExec.TimeoutSec
	}
	if c.ShellExec.MaxOutputBytes == 0 {
		c.ShellExec.MaxOutputBytes = d.ShellExec.MaxOutputBytes
	}
	if c.Files.MaxReadBytes == 0 {
		c.Files.MaxReadBytes = d.Files.MaxReadBytes
	}
	if c.Search.Provider == "" {
		c.Search.Provider = d.Search.Provider
	}
	if c.Search.Endpoint == "" {
		c.Search.Endpoint = d.Search.Endpoint
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}
	if c.Search.TimeoutSec == 0 {
		c.Search.TimeoutSec = d.Search.TimeoutSec
	}
	if c.Checkpoint.Keep == 0 {
		c.Checkpoint.Keep = d.Checkpoint.Keep
	}
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	if c.Memory.MaxActionLog < 1 {
		return fmt.Errorf("memory.max_action_log must be positive, got %d", c.Memory.MaxActionLog)
	}
	if c.Agent.MaxToolRounds < 1 {
		return fmt.Errorf("agent.max_tool_rounds must be positive, got %d", c.Agent.MaxToolRounds)
	}
	if c.Agent.SummaryActions < 0 {
		return fmt.Errorf("agent.summary_actions must not be negative, got %d", c.Agent.SummaryActions)
	}
	if c.Agent.MaxRetryWaitSec < 1 {
		return fmt.Errorf("agent.max_retry_wait_sec must be positive, got %d", c.Agent.MaxRetryWaitSec)
	}
	if c.ShellExec.TimeoutSec < 1 {
		return fmt.Errorf("shell_exec.timeout_sec must be positive, got %d", c.ShellExec.TimeoutSec)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	switch c.Search.Provider {
	case "duckduckgo":
	case "searxng":
		if c.Search.SearXNGURL == "" {
			return fmt.Errorf("search.searxng_url is required when search.provider is searxng")
		}
	default:
		return fmt.Errorf("search.provider must be duckduckgo or searxng, got %q", c.Search.Provider)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// HistoryPath is the conversation history document.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "conversation_history.json")
}

// MemoryPath is the agent memory document.
func (c *Config) MemoryPath() string {
	return filepath.Join(c.DataDir, "agent_memory.json")
}

// JournalPath is the checkpoint journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "checkpoints.db")
}

// LogPath is the structured log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "nivuus.log")
}
