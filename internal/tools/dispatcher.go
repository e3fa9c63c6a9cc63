package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/panics"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Recorder appends to the action log. *memory.Memory satisfies it.
type Recorder interface {
	Record(actionType, target string, status memory.Status, errMsg string) memory.ActionLogEntry
}

// Outcome is the result of dispatching one assistant turn's tool calls.
type Outcome struct {
	// Results holds one tool turn per call, in call order.
	Results []memory.Turn
	// Answered is set when an interactive tool collected operator
	// input; Answer is that input.
	Answered bool
	Answer   string
}

// Dispatcher executes tool calls against a registry.
type Dispatcher struct {
	registry *Registry
	recorder Recorder
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher that logs every call to rec.
func NewDispatcher(reg *Registry, rec Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: reg,
		recorder: rec,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch executes calls strictly in order. Every call yields exactly
// one tool turn; failures become result text rather than errors.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []memory.ToolCall) Outcome {
	out := Outcome{Results: make([]memory.Turn, 0, len(calls))}
	for _, call := range calls {
		payload, answered := d.execute(ctx, call)
		out.Results = append(out.Results, memory.ToolResultTurn(call.ID, call.Function.Name, payload))
		if answered {
			out.Answered = true
			out.Answer = payload
		}
	}
	return out
}

func (d *Dispatcher) execute(ctx context.Context, call memory.ToolCall) (payload string, answered bool) {
	name := call.Function.Name
	actionType := "Tool: " + name
	log := d.logger.With("tool", name, "call_id", call.ID)

	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		msg := fmt.Sprintf("Argument parsing error: %v", err)
		log.Warn("tool arguments unparsable", "error", err, "arguments", call.Function.Arguments)
		d.recorder.Record(actionType, call.Function.Arguments, memory.StatusFailure, msg)
		return msg, false
	}

	target := canonicalJSON(args)
	d.recorder.Record(actionType, target, memory.StatusAttempted, "")
	log.Info("executing tool", "args", target)

	tool := d.registry.Get(name)
	if tool == nil {
		err := &ErrToolUnavailable{ToolName: name}
		log.Warn("unknown tool")
		d.recorder.Record(actionType, target, memory.StatusFailure, err.Error())
		return err.Error(), false
	}

	if err := tool.validate(args); err != nil {
		log.Warn("tool arguments invalid", "error", err)
		d.recorder.Record(actionType, target, memory.StatusFailure, err.Error())
		return err.Error(), false
	}

	result, err := invoke(ctx, tool, args)
	if err != nil {
		msg := fmt.Sprintf("Tool execution failed: %v", err)
		log.Error("tool execution failed", "error", err)
		d.recorder.Record(actionType, target, memory.StatusFailure, err.Error())
		return msg, false
	}

	log.Debug("tool succeeded", "result_len", len(result))
	d.recorder.Record(actionType, target, memory.StatusSuccess, "")
	return result, tool.Interactive
}

// invoke runs the handler, converting a panic into an error.
func invoke(ctx context.Context, tool *Tool, args map[string]any) (string, error) {
	var (
		result string
		err    error
	)
	if r := panics.Try(func() { result, err = tool.Handler(ctx, args) }); r != nil {
		return "", fmt.Errorf("panic: %w", r.AsError())
	}
	return result, err
}

var errArgsNotObject = errors.New("arguments must be a JSON object")

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, errArgsNotObject
	}
}

func canonicalJSON(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}
