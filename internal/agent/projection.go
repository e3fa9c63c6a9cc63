package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/omaremad10/nivuus-agent/internal/llm"
	"github.com/omaremad10/nivuus-agent/internal/memory"
	"github.com/omaremad10/nivuus-agent/internal/prompts"
)

const (
	summaryTargetRunes = 80
	summaryErrorRunes  = 50
)

// project builds the message list for one completion call. When memory
// has content, a summary turn goes right after the system turn. The
// summary is never stored in history.
func (l *Loop) project() []llm.Message {
	turns := l.history.Turns()
	msgs := make([]llm.Message, 0, len(turns)+1)
	for i, t := range turns {
		msgs = append(msgs, toMessage(t))
		if i == 0 && l.mem.HasContent() {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: l.memorySummary()})
		}
	}
	return msgs
}

func (l *Loop) memorySummary() string {
	view := prompts.MemoryView{
		Notes:       l.mem.Notes(),
		ActionTotal: l.mem.ActionCount(),
	}
	if info := l.mem.SystemInfo(); len(info) > 0 {
		if b, err := json.Marshal(info); err == nil {
			view.SystemInfo = string(b)
		}
	}
	for _, e := range l.mem.RecentActions(l.cfg.SummaryActions) {
		view.Actions = append(view.Actions, formatAction(e))
	}
	return prompts.MemorySummary(view)
}

// formatAction renders one action-log entry as
// "HH:MM:SS [status] actionType: target (Err: ...)".
func formatAction(e memory.ActionLogEntry) string {
	line := fmt.Sprintf("%s [%s] %s: %s",
		e.Timestamp.UTC().Format("15:04:05"),
		e.Status,
		e.ActionType,
		cutRunes(e.Target, summaryTargetRunes),
	)
	if e.Status == memory.StatusFailure && e.ErrorMsg != "" {
		line += fmt.Sprintf(" (Err: %s)", cutRunes(e.ErrorMsg, summaryErrorRunes))
	}
	return line
}

func cutRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func toMessage(t memory.Turn) llm.Message {
	m := llm.Message{
		Role:       string(t.Role),
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		Name:       t.Name,
	}
	for _, c := range t.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		})
	}
	return m
}

// toolCalls converts the model's requests into history form. Calls the
// model sent without an ID get a generated one so results can pair
// with them.
func toolCalls(calls []llm.ToolCall) []memory.ToolCall {
	out := make([]memory.ToolCall, 0, len(calls))
	for _, c := range calls {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = "call_" + ulid.Make().String()
		}
		out = append(out, memory.ToolCall{
			ID:   id,
			Type: "function",
			Function: memory.FunctionCall{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	return out
}
