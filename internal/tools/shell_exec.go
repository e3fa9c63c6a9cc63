package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

const shellActionType = "Command"

// ShellExec provides command execution behind an operator confirmation.
type ShellExec struct {
	workingDir     string
	deniedCmds     []string // Patterns to block (e.g., "rm -rf /", "mkfs")
	defaultTimeout time.Duration
	maxOutputBytes int

	confirm  Confirmer
	recorder Recorder
	logger   *slog.Logger
}

// ShellExecConfig configures the shell executor.
type ShellExecConfig struct {
	WorkingDir     string
	DeniedCmds     []string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// DefaultShellExecConfig returns safe defaults.
func DefaultShellExecConfig() ShellExecConfig {
	return ShellExecConfig{
		DeniedCmds: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			"> /dev/sd",
			"chmod -R 777 /",
			":(){ :|:& };:", // Fork bomb
		},
		DefaultTimeout: 120 * time.Second,
		MaxOutputBytes: 40000,
	}
}

// NewShellExec creates a new shell executor.
func NewShellExec(cfg ShellExecConfig, confirm Confirmer, rec Recorder, logger *slog.Logger) *ShellExec {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 120 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 40000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellExec{
		workingDir:     cfg.WorkingDir,
		deniedCmds:     cfg.DeniedCmds,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		confirm:        confirm,
		recorder:       rec,
		logger:         logger.With("component", "shell_exec"),
	}
}

// ExecResult contains the result of a command execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timedOut,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrCommandDenied is returned for commands matching a denied pattern.
var ErrCommandDenied = errors.New("command blocked by security policy")

// Exec executes a shell command without asking for confirmation.
func (s *ShellExec) Exec(ctx context.Context, command string) (*ExecResult, error) {
	if err := s.checkDenied(command); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if s.workingDir != "" {
		cmd.Dir = s.workingDir
	}
	// Children of sh can hold the pipes open after sh is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout:   truncateOutput(stdout.String(), s.maxOutputBytes),
		Stderr:   truncateOutput(stderr.String(), s.maxOutputBytes),
		ExitCode: 0,
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Error = fmt.Sprintf("command timed out after %s", s.defaultTimeout)
		result.ExitCode = -1
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Error = err.Error()
			result.ExitCode = -1
		}
	}

	return result, nil
}

func (s *ShellExec) checkDenied(command string) error {
	cmdLower := strings.ToLower(command)
	for _, denied := range s.deniedCmds {
		if strings.Contains(cmdLower, strings.ToLower(denied)) {
			return fmt.Errorf("%w: matches denied pattern %q", ErrCommandDenied, denied)
		}
	}
	return nil
}

// Tool returns the run_bash_command tool.
func (s *ShellExec) Tool() *Tool {
	return &Tool{
		Name:        "run_bash_command",
		Description: "Execute a shell command on the local system. The operator is asked to confirm before it runs. Returns STDOUT and STDERR sections.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to execute",
				},
				"purpose": map[string]any{
					"type":        "string",
					"description": "Why this command is being run, shown to the operator",
				},
			},
			"required": []string{"command", "purpose"},
		},
		Handler: s.handleRunCommand,
	}
}

func (s *ShellExec) handleRunCommand(ctx context.Context, args map[string]any) (string, error) {
	command := stringArg(args, "command")
	purpose := stringArg(args, "purpose")
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("command is required")
	}
	if purpose == "" {
		purpose = "not specified"
	}

	if err := s.checkDenied(command); err != nil {
		s.recorder.Record(shellActionType, command, memory.StatusFailure, err.Error())
		return "", err
	}

	question := fmt.Sprintf("Proposed command: %s\nPurpose: %s\nExecute this command?", command, purpose)
	ok, err := s.confirm.Confirm(ctx, question)
	if err != nil {
		return "", fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		s.logger.Info("command declined", "command", command)
		s.recorder.Record(shellActionType, command, memory.StatusCancelled, "")
		return "Execution cancelled by user.", nil
	}

	s.recorder.Record(shellActionType, command, memory.StatusAttempted, "")
	start := time.Now()
	result, err := s.Exec(ctx, command)
	if err != nil {
		s.recorder.Record(shellActionType, command, memory.StatusFailure, err.Error())
		return "", err
	}

	s.logger.Info("command finished",
		"command", command,
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if result.ExitCode == 0 {
		s.recorder.Record(shellActionType, command, memory.StatusSuccess, "")
	} else {
		s.recorder.Record(shellActionType, command, memory.StatusFailure, failureMessage(result))
	}
	return formatExecResult(result), nil
}

func failureMessage(r *ExecResult) string {
	if msg := strings.TrimSpace(r.Stderr); msg != "" {
		return msg
	}
	if r.Error != "" {
		return r.Error
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// formatExecResult renders a result the way the model sees it.
func formatExecResult(r *ExecResult) string {
	stderr := r.Stderr
	if r.Error != "" {
		stderr = strings.TrimSpace(stderr + "\n" + r.Error)
	}

	var b strings.Builder
	if out := strings.TrimSpace(r.Stdout); out != "" {
		fmt.Fprintf(&b, "STDOUT:\n%s\n", out)
	}
	if errOut := strings.TrimSpace(stderr); errOut != "" {
		fmt.Fprintf(&b, "STDERR:\n%s\n", errOut)
	}
	if b.Len() == 0 {
		if r.ExitCode != 0 {
			return fmt.Sprintf("Command finished with code %d and no output.", r.ExitCode)
		}
		return "Command executed successfully with no output."
	}
	return strings.TrimSpace(b.String())
}

// truncateOutput truncates output to maxBytes, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}
