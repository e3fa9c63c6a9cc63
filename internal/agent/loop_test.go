package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
	"github.com/omaremad10/nivuus-agent/internal/console"
	"github.com/omaremad10/nivuus-agent/internal/llm"
	"github.com/omaremad10/nivuus-agent/internal/memory"
	"github.com/omaremad10/nivuus-agent/internal/prompts"
	"github.com/omaremad10/nivuus-agent/internal/tools"
)

const testModel = "test-model"

// step is one scripted completion result.
type step struct {
	resp *llm.Response
	err  error
}

// mockLLM replays scripted steps. When the script runs out it cancels
// the run context, which ends the loop.
type mockLLM struct {
	mu       sync.Mutex
	steps    []step
	requests []*llm.Request
	cancel   context.CancelFunc
}

func (m *mockLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	m.requests = append(m.requests, &cp)

	i := len(m.requests) - 1
	if i >= len(m.steps) {
		m.cancel()
		return nil, context.Canceled
	}
	return m.steps[i].resp, m.steps[i].err
}

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type fakePersist struct {
	mu        sync.Mutex
	flushes   int
	flushErr  error
	shutdowns []checkpoint.Trigger
}

func (p *fakePersist) Flush(checkpoint.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return p.flushErr
}

func (p *fakePersist) Shutdown(reason checkpoint.Trigger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns = append(p.shutdowns, reason)
}

type harness struct {
	ctx     context.Context
	loop    *Loop
	client  *mockLLM
	history *memory.History
	mem     *memory.Memory
	persist *fakePersist
	out     *bytes.Buffer
	echoed  []string
}

func textReply(s string) step {
	return step{resp: &llm.Response{Model: testModel, Message: llm.Message{Role: llm.RoleAssistant, Content: s}}}
}

func toolReply(calls ...llm.ToolCall) step {
	return step{resp: &llm.Response{Model: testModel, Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}}
}

func failure(err error) step { return step{err: err} }

func echoCall(id, text string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: "echo", Arguments: fmt.Sprintf(`{"text":%q}`, text)}
}

func askCall(id, question string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: "ask_user", Arguments: fmt.Sprintf(`{"question":%q}`, question)}
}

func newHarness(t *testing.T, input string, steps ...step) *harness {
	t.Helper()
	return newHarnessWith(t, Config{Model: testModel}, memory.NewHistory("system prompt"), memory.New(50), input, steps...)
}

func newHarnessWith(t *testing.T, cfg Config, history *memory.History, mem *memory.Memory, input string, steps ...step) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		ctx:     ctx,
		client:  &mockLLM{steps: steps, cancel: cancel},
		history: history,
		mem:     mem,
		persist: &fakePersist{},
		out:     &bytes.Buffer{},
	}
	term := console.NewTerminal(strings.NewReader(input), h.out)

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "echo",
		Description: "Echo text back",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			h.echoed = append(h.echoed, text)
			return "echo: " + text, nil
		},
	}))
	require.NoError(t, reg.Register(tools.AskUserTool(term, mem)))

	h.loop = New(cfg, Deps{
		Client:   h.client,
		Registry: reg,
		History:  history,
		Memory:   mem,
		Persist:  h.persist,
		Console:  term,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) run() error {
	return h.loop.Run(h.ctx)
}

func lastUser(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func TestRun_FreshStartSendsProactiveDiscovery(t *testing.T) {
	h := newHarness(t, "", textReply("hello"))

	err := h.run()
	require.ErrorIs(t, err, context.Canceled)

	first := h.client.requests[0]
	require.Len(t, first.Messages, 2, "no memory turn on an empty memory")
	assert.Equal(t, llm.RoleSystem, first.Messages[0].Role)
	assert.Equal(t, prompts.ProactiveDiscovery, first.Messages[1].Content)
	assert.Equal(t, testModel, first.Model)
	assert.Equal(t, llm.ToolChoiceAuto, first.ToolChoice)
	assert.Len(t, first.Tools, 2)

	second := h.client.requests[1]
	assert.Equal(t, prompts.AutoContinue, lastUser(second.Messages))
}

func TestRun_ResumedStateSendsResumeInstruction(t *testing.T) {
	mem := memory.New(50)
	mem.SetFact("os", "Linux")
	h := newHarnessWith(t, Config{Model: testModel}, memory.NewHistory("system prompt"), mem, "", textReply("ok"))

	require.ErrorIs(t, h.run(), context.Canceled)

	msgs := h.client.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, prompts.MemoryReminder)
	assert.Contains(t, msgs[1].Content, `System info: {"os":"Linux"}`)
	assert.Equal(t, prompts.ResumeInstruction, msgs[2].Content)

	for _, turn := range h.history.Turns() {
		assert.NotContains(t, turn.Content, prompts.MemoryReminder, "memory summary must not be stored")
	}
}

func TestRun_ResumedHistorySendsResumeInstruction(t *testing.T) {
	history := memory.RestoreHistory([]memory.Turn{
		memory.SystemTurn("system prompt"),
		memory.UserTurn("earlier"),
		memory.AssistantTurn("earlier reply", nil),
	})
	h := newHarnessWith(t, Config{Model: testModel}, history, memory.New(50), "", textReply("ok"))

	require.ErrorIs(t, h.run(), context.Canceled)
	assert.Equal(t, prompts.ResumeInstruction, lastUser(h.client.requests[0].Messages))
}

func TestRun_ToolBatchYieldsOneResultPerCallInOrder(t *testing.T) {
	h := newHarness(t, "",
		toolReply(echoCall("call_a", "one"), echoCall("call_b", "two"), echoCall("call_c", "three")),
		textReply("done"),
	)

	require.ErrorIs(t, h.run(), context.Canceled)
	assert.Equal(t, []string{"one", "two", "three"}, h.echoed)

	turns := h.history.Turns()
	require.GreaterOrEqual(t, len(turns), 7)
	assistant := turns[2]
	require.True(t, assistant.HasToolCalls())
	require.Len(t, assistant.ToolCalls, 3)

	for i, call := range assistant.ToolCalls {
		result := turns[3+i]
		assert.Equal(t, memory.RoleTool, result.Role)
		assert.Equal(t, call.ID, result.ToolCallID)
		assert.Equal(t, "echo", result.Name)
	}
	assert.Equal(t, "echo: two", turns[4].Content)
	assert.Equal(t, memory.RoleAssistant, turns[6].Role)
	assert.Equal(t, "done", turns[6].Content)

	followUp := h.client.requests[1].Messages
	assert.Equal(t, llm.RoleTool, followUp[len(followUp)-1].Role)
	assert.Equal(t, "call_c", followUp[len(followUp)-1].ToolCallID)
}

func TestRun_ToolCallWithoutIDGetsOne(t *testing.T) {
	h := newHarness(t, "", toolReply(echoCall("", "x")), textReply("done"))

	require.ErrorIs(t, h.run(), context.Canceled)

	turns := h.history.Turns()
	id := turns[2].ToolCalls[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"), id)
	assert.Equal(t, id, turns[3].ToolCallID)
}

func TestRun_InteractiveAnswerSkipsFollowUpCompletion(t *testing.T) {
	h := newHarness(t, "check the disks\n",
		toolReply(echoCall("call_1", "before"), askCall("call_2", "What next?")),
		textReply("checking"),
	)

	require.ErrorIs(t, h.run(), context.Canceled)

	require.GreaterOrEqual(t, h.client.calls(), 2)
	second := h.client.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleUser, last.Role, "answer goes straight into the next user turn")
	assert.Equal(t, "check the disks", last.Content)
	assert.Equal(t, llm.RoleTool, second[len(second)-2].Role)
	assert.Contains(t, h.out.String(), "Assistant asks: What next?")
}

func TestRun_QuitAnswerEndsLoopWithoutAppending(t *testing.T) {
	h := newHarness(t, "  QUIT \n", toolReply(askCall("call_1", "Anything else?")))

	require.NoError(t, h.run())

	assert.Equal(t, 1, h.client.calls())
	assert.Equal(t, StateTerminated, h.loop.State())
	assert.Equal(t, []checkpoint.Trigger{checkpoint.TriggerQuit}, h.persist.shutdowns)

	turns := h.history.Turns()
	last := turns[len(turns)-1]
	assert.Equal(t, memory.RoleTool, last.Role)
	for _, turn := range turns {
		if turn.Role == memory.RoleUser {
			assert.False(t, IsQuit(turn.Content))
		}
	}
}

func TestRun_ClosedInputQuits(t *testing.T) {
	h := newHarness(t, "", toolReply(askCall("call_1", "Anything else?")))

	require.NoError(t, h.run())
	assert.Equal(t, []checkpoint.Trigger{checkpoint.TriggerQuit}, h.persist.shutdowns)
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	authErr := &llm.Error{Kind: llm.KindAuth, Provider: "openai", StatusCode: 401, Message: "Incorrect API key"}
	h := newHarness(t, "", failure(authErr), textReply("never"))

	err := h.run()
	require.Error(t, err)
	var apiErr *llm.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, llm.KindAuth, apiErr.Kind)

	assert.Equal(t, 1, h.client.calls(), "no auto-continue after a fatal error")
	actions := h.mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "System", actions[0].ActionType)
	assert.Equal(t, "Completion API Error: 401", actions[0].Target)
	assert.Equal(t, memory.StatusFailure, actions[0].Status)
	assert.Equal(t, []checkpoint.Trigger{checkpoint.TriggerFatal}, h.persist.shutdowns)
	assert.Equal(t, StateTerminated, h.loop.State())
	assert.Contains(t, h.out.String(), "Check your API key")
}

func TestRun_GenericFailureTruncatesAndAutoContinues(t *testing.T) {
	h := newHarness(t, "",
		textReply("first answer"),
		failure(errors.New("boom")),
	)

	require.ErrorIs(t, h.run(), context.Canceled)
	require.Equal(t, 3, h.client.calls())

	// The failed iteration's user turn is gone; the retry appended a
	// fresh auto-continue.
	turns := h.history.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, prompts.ProactiveDiscovery, turns[1].Content)
	assert.Equal(t, "first answer", turns[2].Content)
	assert.Equal(t, prompts.AutoContinue, turns[3].Content)
	assert.Equal(t, prompts.AutoContinue, lastUser(h.client.requests[2].Messages))

	var failures []memory.ActionLogEntry
	for _, a := range h.mem.Actions() {
		if a.Status == memory.StatusFailure {
			failures = append(failures, a)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, "System", failures[0].ActionType)
	assert.Equal(t, "Unexpected Loop Error", failures[0].Target)
	assert.Equal(t, "boom", failures[0].ErrorMsg)
	assert.Contains(t, h.out.String(), "Retrying automatically")
}

func TestRun_FailureOnFirstTurnKeepsOnlySystem(t *testing.T) {
	netErr := &llm.Error{Kind: llm.KindNetwork, Provider: "openai", Message: "connection refused"}
	h := newHarness(t, "", failure(netErr))

	require.ErrorIs(t, h.run(), context.Canceled)

	turns := h.history.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleSystem, turns[0].Role)
	assert.Equal(t, prompts.AutoContinue, turns[1].Content)

	actions := h.mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "Network", actions[0].ActionType)
}

func TestRun_ToolRoundLimit(t *testing.T) {
	h := newHarnessWith(t, Config{Model: testModel, MaxToolRounds: 1},
		memory.NewHistory("system prompt"), memory.New(50), "",
		toolReply(echoCall("call_1", "a")),
		toolReply(echoCall("call_2", "b")),
	)

	require.ErrorIs(t, h.run(), context.Canceled)
	assert.Equal(t, []string{"a"}, h.echoed)

	var found bool
	for _, a := range h.mem.Actions() {
		if a.Status == memory.StatusFailure && strings.Contains(a.ErrorMsg, "tool round limit") {
			found = true
		}
	}
	assert.True(t, found, "round limit recorded as a failure")
}

func TestRun_LoopActionEntries(t *testing.T) {
	h := newHarness(t, "", toolReply(echoCall("call_1", "a")), textReply("done"))

	require.ErrorIs(t, h.run(), context.Canceled)

	var types []string
	for _, a := range h.mem.Actions() {
		types = append(types, a.ActionType)
	}
	assert.Equal(t, []string{"Tool Call Decision", "Tool: echo", "Tool: echo", "API Response"}, types)
	assert.Equal(t, testModel, h.mem.Actions()[0].Target)
}

func TestRun_AppliesFactsFromReplies(t *testing.T) {
	h := newHarness(t, "", textReply("Summary of the host:\nos: Ubuntu 24.04\nkernel: 6.8.0"))

	require.ErrorIs(t, h.run(), context.Canceled)

	info := h.mem.SystemInfo()
	assert.Equal(t, "Ubuntu 24.04", info["os"])
	assert.Equal(t, "6.8.0", info["kernel"])
	assert.Contains(t, h.out.String(), "Assistant:")
}

func TestRun_FlushesAfterEachIteration(t *testing.T) {
	h := newHarness(t, "", textReply("one"), textReply("two"))

	require.ErrorIs(t, h.run(), context.Canceled)
	assert.Equal(t, 2, h.persist.flushes)
	assert.Equal(t, []checkpoint.Trigger{checkpoint.TriggerShutdown}, h.persist.shutdowns)
}

func TestRun_ContinuesWhenFlushFails(t *testing.T) {
	h := newHarness(t, "", textReply("one"), textReply("two"))
	h.persist.flushErr = errors.New("disk full")

	require.ErrorIs(t, h.run(), context.Canceled)
	assert.Equal(t, 3, h.client.calls())
	assert.Equal(t, 2, h.persist.flushes)
	assert.Contains(t, h.out.String(), "two")
}

func TestProjection_SummarizesRecentActions(t *testing.T) {
	mem := memory.New(50)
	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	mem.SetClock(func() time.Time { return at })
	for i := range 7 {
		mem.Record("Command", fmt.Sprintf("cmd-%d", i), memory.StatusSuccess, "")
	}
	h := newHarnessWith(t, Config{Model: testModel, SummaryActions: 3}, memory.NewHistory("system prompt"), mem, "")

	msgs := h.loop.project()
	require.Len(t, msgs, 2)
	summary := msgs[1].Content
	assert.Contains(t, summary, "Recent actions (3 of 7):")
	assert.Contains(t, summary, "13:04:05 [Success] Command: cmd-6")
	assert.NotContains(t, summary, "cmd-3")
}

func TestFormatAction(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	ok := formatAction(memory.ActionLogEntry{Timestamp: at, ActionType: "Command", Target: "ls", Status: memory.StatusSuccess})
	assert.Equal(t, "09:30:00 [Success] Command: ls", ok)

	failed := formatAction(memory.ActionLogEntry{
		Timestamp:  at,
		ActionType: "Command",
		Target:     strings.Repeat("t", 100),
		Status:     memory.StatusFailure,
		ErrorMsg:   strings.Repeat("e", 60),
	})
	assert.Equal(t,
		"09:30:00 [Failure] Command: "+strings.Repeat("t", 80)+"... (Err: "+strings.Repeat("e", 50)+"...)",
		failed)

	cancelled := formatAction(memory.ActionLogEntry{Timestamp: at, ActionType: "File Write", Target: "/tmp/x", Status: memory.StatusCancelled, ErrorMsg: "ignored"})
	assert.Equal(t, "09:30:00 [Cancelled] File Write: /tmp/x", cancelled)
}

func TestIsQuit(t *testing.T) {
	for _, s := range []string{"quit", "QUIT", " Quit\n"} {
		assert.True(t, IsQuit(s), s)
	}
	for _, s := range []string{"", "quit now", "q"} {
		assert.False(t, IsQuit(s), s)
	}
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		actionType string
		target     string
		kind       llm.ErrorKind
	}{
		{"auth", &llm.Error{Kind: llm.KindAuth, StatusCode: 401}, "System", "Completion API Error: 401", llm.KindAuth},
		{"rate limit", &llm.Error{Kind: llm.KindRateLimit, StatusCode: 429}, "System", "Completion API Error: 429", llm.KindRateLimit},
		{"network", context.DeadlineExceeded, "Network", "Completion Request", llm.KindNetwork},
		{"server", &llm.Error{Kind: llm.KindUnknown, StatusCode: 500}, "System", "Completion API Error: 500", llm.KindUnknown},
		{"undecodable body", &llm.Error{Kind: llm.KindUnknown, Message: "decode response", Err: &json.SyntaxError{Offset: 1}}, "System", "Unexpected Loop Error", llm.KindUnknown},
		{"other", errors.New("x"), "System", "Unexpected Loop Error", llm.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := describeFailure(tt.err)
			assert.Equal(t, tt.kind, f.kind)
			assert.Equal(t, tt.actionType, f.actionType)
			assert.Equal(t, tt.target, f.target)
			assert.NotEmpty(t, f.notice)
		})
	}
}
