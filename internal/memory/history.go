package memory

import "sync"

// Role identifies who produced a turn.
type Role string

// Turn roles. The tool role carries a tool-call result.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool-call request inside an assistant turn.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its raw JSON argument string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one entry in the conversation history. An assistant turn with
// ToolCalls carries no meaningful Content; a tool turn carries the
// originating ToolCallID and tool Name.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemTurn returns the system prompt turn.
func SystemTurn(prompt string) Turn { return Turn{Role: RoleSystem, Content: prompt} }

// UserTurn returns a user turn.
func UserTurn(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// AssistantTurn returns an assistant turn. When calls is non-empty the
// text is dropped.
func AssistantTurn(text string, calls []ToolCall) Turn {
	if len(calls) > 0 {
		return Turn{Role: RoleAssistant, ToolCalls: cloneCalls(calls)}
	}
	return Turn{Role: RoleAssistant, Content: text}
}

// ToolResultTurn returns the result turn paired with a tool call.
func ToolResultTurn(callID, name, payload string) Turn {
	return Turn{Role: RoleTool, ToolCallID: callID, Name: name, Content: payload}
}

// HasToolCalls reports whether t is an assistant turn requesting tools.
func (t Turn) HasToolCalls() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls) > 0
}

func (t Turn) clone() Turn {
	t.ToolCalls = cloneCalls(t.ToolCalls)
	return t
}

func cloneCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	copy(out, calls)
	return out
}

// History is the ordered conversation. The first turn is always the
// single system turn. It is appended to by the turn loop, truncated by
// the retry policy, and snapshotted concurrently by termination paths.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory returns a history holding only the system turn.
func NewHistory(systemPrompt string) *History {
	return &History{turns: []Turn{SystemTurn(systemPrompt)}}
}

// RestoreHistory wraps previously persisted turns. Callers normalize it
// with [History.EnsureSystem] and [History.DropIncompleteToolBatch].
func RestoreHistory(turns []Turn) *History {
	h := &History{turns: make([]Turn, 0, len(turns))}
	for _, t := range turns {
		h.turns = append(h.turns, t.clone())
	}
	return h
}

// Append adds turns at the end.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range turns {
		h.turns = append(h.turns, t.clone())
	}
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of the history.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = t.clone()
	}
	return out
}

// Last returns the final turn.
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1].clone(), true
}

// OnlySystem reports whether the history holds nothing but the system
// turn, i.e. a fresh start.
func (h *History) OnlySystem() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns) <= 1
}

// EnsureSystem makes prompt the first turn: an existing system turn with
// different content is replaced, a missing one is prepended. Reports
// whether anything changed.
func (h *History) EnsureSystem(prompt string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.turns) > 0 && h.turns[0].Role == RoleSystem {
		if h.turns[0].Content == prompt {
			return false
		}
		h.turns[0] = SystemTurn(prompt)
		return true
	}
	h.turns = append([]Turn{SystemTurn(prompt)}, h.turns...)
	return true
}

// DropIncompleteToolBatch removes a trailing assistant tool-call turn
// whose calls are not all answered, along with any partial results
// after it. Matching results cannot be reconstructed after an
// interrupted run. Returns the number of turns removed.
func (h *History) DropIncompleteToolBatch() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := len(h.turns) - 1
	for i > 0 && h.turns[i].Role == RoleTool {
		i--
	}
	if i <= 0 || !h.turns[i].HasToolCalls() {
		return 0
	}

	answered := make(map[string]bool)
	for _, t := range h.turns[i+1:] {
		answered[t.ToolCallID] = true
	}
	for _, c := range h.turns[i].ToolCalls {
		if !answered[c.ID] {
			removed := len(h.turns) - i
			h.turns = h.turns[:i]
			return removed
		}
	}
	return 0
}

// TruncateBeforeLastUser drops the most recent user turn and everything
// after it. Without any user turn, only the system turn is kept.
// Returns how many turns were removed.
func (h *History) TruncateBeforeLastUser() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cut := -1
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == RoleUser {
			cut = i
			break
		}
	}
	if cut < 0 {
		cut = min(1, len(h.turns))
	}
	removed := len(h.turns) - cut
	h.turns = h.turns[:cut]
	return removed
}
