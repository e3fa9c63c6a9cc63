// Package llm talks to the chat completion service and classifies its
// failures.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the projected conversation sent to the model.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a tool-call request as emitted by the model. Arguments is
// the raw JSON string; it is parsed by the dispatcher, not here.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a callable tool in the catalog sent with
// every request. Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoiceAuto lets the model decide between text and tool calls.
const ToolChoiceAuto = "auto"

// Request is one completion call.
type Request struct {
	Model      string
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice string
}

// Response is the model's single reply: free text, or one or more tool
// calls.
type Response struct {
	Model        string
	Message      Message
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the reply requests tools.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}
