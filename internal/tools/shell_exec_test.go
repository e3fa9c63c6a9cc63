package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

func newTestShell(t *testing.T, confirm Confirmer) (*ShellExec, *memory.Memory) {
	t.Helper()
	mem := memory.New(100)
	cfg := DefaultShellExecConfig()
	cfg.WorkingDir = t.TempDir()
	return NewShellExec(cfg, confirm, mem, nil), mem
}

func runCommand(t *testing.T, se *ShellExec, command string) (string, error) {
	t.Helper()
	return se.Tool().Handler(context.Background(), map[string]any{"command": command, "purpose": "testing"})
}

func TestShellExec_BasicCommand(t *testing.T) {
	se, _ := newTestShell(t, nil)

	result, err := se.Exec(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
}

func TestShellExec_NonZeroExit(t *testing.T) {
	se, _ := newTestShell(t, nil)

	result, err := se.Exec(context.Background(), "exit 42")
	require.NoError(t, err)
	assert.Equal(t, 42, result.ExitCode)
}

func TestShellExec_CapturesStderr(t *testing.T) {
	se, _ := newTestShell(t, nil)

	result, err := se.Exec(context.Background(), "echo error >&2")
	require.NoError(t, err)
	assert.Equal(t, "error\n", result.Stderr)
}

func TestShellExec_Timeout(t *testing.T) {
	cfg := DefaultShellExecConfig()
	cfg.DefaultTimeout = 200 * time.Millisecond
	se := NewShellExec(cfg, nil, memory.New(10), nil)

	start := time.Now()
	result, err := se.Exec(context.Background(), "sleep 5")
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellExec_DeniedCommand(t *testing.T) {
	confirm := &fakeConfirm{answer: true}
	se, mem := newTestShell(t, confirm)

	_, err := se.Exec(context.Background(), "rm -rf /")
	assert.ErrorIs(t, err, ErrCommandDenied)

	_, err = runCommand(t, se, "sudo MKFS.ext4 /dev/sda1")
	assert.ErrorIs(t, err, ErrCommandDenied)
	assert.Empty(t, confirm.questions, "denied commands never reach the operator")

	actions := mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "Command", actions[0].ActionType)
	assert.Equal(t, memory.StatusFailure, actions[0].Status)
}

func TestShellExec_ConfirmedRun(t *testing.T) {
	confirm := &fakeConfirm{answer: true}
	se, mem := newTestShell(t, confirm)

	out, err := runCommand(t, se, "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "STDOUT:\nhi", out)

	require.Len(t, confirm.questions, 1)
	assert.Contains(t, confirm.questions[0], "Proposed command: echo hi")
	assert.Contains(t, confirm.questions[0], "Purpose: testing")
	assert.Equal(t, []memory.Status{memory.StatusAttempted, memory.StatusSuccess}, statuses(mem.Actions()))
}

func TestShellExec_DeclinedRun(t *testing.T) {
	se, mem := newTestShell(t, &fakeConfirm{answer: false})

	out, err := runCommand(t, se, "touch should-not-exist")
	require.NoError(t, err)
	assert.Equal(t, "Execution cancelled by user.", out)

	actions := mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, memory.StatusCancelled, actions[0].Status)
	assert.Equal(t, "touch should-not-exist", actions[0].Target)
}

func TestShellExec_ConfirmationError(t *testing.T) {
	se, _ := newTestShell(t, &fakeConfirm{err: errors.New("stdin closed")})

	_, err := runCommand(t, se, "echo hi")
	assert.ErrorContains(t, err, "stdin closed")
}

func TestShellExec_FailedRunRecordsStderr(t *testing.T) {
	se, mem := newTestShell(t, &fakeConfirm{answer: true})

	out, err := runCommand(t, se, "echo broken >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "STDERR:\nbroken", out)

	actions := mem.Actions()
	last := actions[len(actions)-1]
	assert.Equal(t, memory.StatusFailure, last.Status)
	assert.Equal(t, "broken", last.ErrorMsg)
}

func TestFormatExecResult(t *testing.T) {
	tests := []struct {
		name   string
		result ExecResult
		want   string
	}{
		{"silent success", ExecResult{}, "Command executed successfully with no output."},
		{"silent failure", ExecResult{ExitCode: 2}, "Command finished with code 2 and no output."},
		{"both streams", ExecResult{Stdout: "out\n", Stderr: "warn\n"}, "STDOUT:\nout\nSTDERR:\nwarn"},
		{"timeout", ExecResult{TimedOut: true, ExitCode: -1, Error: "command timed out after 1s"}, "STDERR:\ncommand timed out after 1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatExecResult(&tt.result))
		})
	}
}

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", truncateOutput("short", 10))

	got := truncateOutput(strings.Repeat("x", 20), 10)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("x", 10)))
	assert.Contains(t, got, "output truncated")
}
