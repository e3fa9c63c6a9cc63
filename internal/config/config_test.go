package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "model: gpt-4o\n")

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoConfig))
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("model: x\n"), 0o600))
	t.Chdir(dir)

	got, err := FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", got)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
model: gpt-4o-mini
data_dir: /tmp/nivuus-test
memory:
  max_action_log: 10
shell_exec:
  timeout_sec: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 10, cfg.Memory.MaxActionLog)
	assert.Equal(t, 5, cfg.ShellExec.TimeoutSec)
	assert.Equal(t, DefaultMaxToolRounds, cfg.Agent.MaxToolRounds)
	assert.Equal(t, DefaultMaxRetryWait, cfg.Agent.MaxRetryWaitSec)
	assert.Equal(t, DefaultMaxReadBytes, int(cfg.Files.MaxReadBytes))
	assert.Equal(t, DefaultSearchEndpoint, cfg.Search.Endpoint)
	assert.Equal(t, DefaultSearchProvider, cfg.Search.Provider)
	assert.Equal(t, filepath.Join("/tmp/nivuus-test", "agent_memory.json"), cfg.MemoryPath())
	assert.Equal(t, filepath.Join("/tmp/nivuus-test", "conversation_history.json"), cfg.HistoryPath())
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_NIVUUS_KEY", "sk-from-env")
	path := writeConfig(t, "api_key: ${TEST_NIVUUS_KEY}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.APIKey)
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, "log_level: chatty\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestLoad_RejectsNegativeCapacity(t *testing.T) {
	path := writeConfig(t, "memory:\n  max_action_log: -1\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNegativeRetryWait(t *testing.T) {
	_, err := Load(writeConfig(t, "agent:\n  max_retry_wait_sec: -5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retry_wait_sec")
}

func TestLoad_SearXNGNeedsURL(t *testing.T) {
	_, err := Load(writeConfig(t, "search:\n  provider: searxng\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searxng_url")

	cfg, err := Load(writeConfig(t, "search:\n  provider: searxng\n  searxng_url: http://localhost:8080\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Search.SearXNGURL)

	_, err = Load(writeConfig(t, "search:\n  provider: bing\n"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"TRACE", LevelTrace},
		{" debug ", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	assert.Equal(t, "TRACE", a.Value.String())

	b := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, b.Value.Any())
}
