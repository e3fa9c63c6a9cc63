// Package agent implements the turn orchestrator: it picks the next user
// content, calls the completion service, runs requested tools, and keeps
// going until the operator quits or a fatal error occurs.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
	"github.com/omaremad10/nivuus-agent/internal/llm"
	"github.com/omaremad10/nivuus-agent/internal/memory"
	"github.com/omaremad10/nivuus-agent/internal/prompts"
	"github.com/omaremad10/nivuus-agent/internal/tools"
)

// Defaults applied by [New] to zero Config fields.
const (
	DefaultMaxToolRounds  = 25
	DefaultSummaryActions = 5
	DefaultMaxRetryWait   = 30 * time.Second
)

// QuitCommand ends the loop when it is the next user content.
const QuitCommand = "quit"

// Persister saves state between iterations and at termination.
// *persist.Manager satisfies it.
type Persister interface {
	Flush(reason checkpoint.Trigger) error
	Shutdown(reason checkpoint.Trigger)
}

// Console is the operator-facing output.
type Console interface {
	Printf(format string, args ...any)
	Reply(text string)
}

// Config tunes the loop.
type Config struct {
	Model          string
	MaxToolRounds  int           // tool rounds allowed per user turn
	SummaryActions int           // action-log entries in the memory summary
	MaxRetryWait   time.Duration // cap on a rate-limit Retry-After wait
}

// Deps are the collaborators the loop drives. History and Memory are
// owned by the loop for its lifetime.
type Deps struct {
	Client   llm.Client
	Registry *tools.Registry
	History  *memory.History
	Memory   *memory.Memory
	Persist  Persister
	Console  Console
	Logger   *slog.Logger
}

// Loop is the turn orchestrator.
type Loop struct {
	cfg        Config
	client     llm.Client
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	history    *memory.History
	mem        *memory.Memory
	persist    Persister
	console    Console
	logger     *slog.Logger
	state      atomic.Int32
}

// New creates a loop. Memory doubles as the dispatcher's action log.
func New(cfg Config, deps Deps) *Loop {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.SummaryActions <= 0 {
		cfg.SummaryActions = DefaultSummaryActions
	}
	if cfg.MaxRetryWait == 0 {
		cfg.MaxRetryWait = DefaultMaxRetryWait
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	return &Loop{
		cfg:        cfg,
		client:     deps.Client,
		registry:   deps.Registry,
		dispatcher: tools.NewDispatcher(deps.Registry, deps.Memory, logger),
		history:    deps.History,
		mem:        deps.Memory,
		persist:    deps.Persist,
		console:    deps.Console,
		logger:     logger,
	}
}

// State returns the current orchestrator state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.logger.Debug("state transition", "from", prev, "to", s)
	}
}

// IsQuit reports whether content asks the loop to stop.
func IsQuit(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), QuitCommand)
}

// nextContent selects the user content for the coming iteration.
func (l *Loop) nextContent(first bool, answered bool, answer string) string {
	switch {
	case first && l.history.OnlySystem() && len(l.mem.SystemInfo()) == 0:
		return prompts.ProactiveDiscovery
	case first:
		return prompts.ResumeInstruction
	case answered:
		return answer
	default:
		return prompts.AutoContinue
	}
}

// Run drives the loop until the operator quits, ctx is cancelled, or a
// fatal error occurs. A quit returns nil; a fatal error is returned
// after the final flush.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateInit)
	l.logger.Info("agent loop started",
		"model", l.cfg.Model,
		"turns", l.history.Len(),
		"actions", l.mem.ActionCount(),
		"tools", len(l.registry.Names()),
	)

	var (
		first    = true
		answered bool
		answer   string
	)
	for {
		l.setState(StateAwaitingUserTurn)
		if err := ctx.Err(); err != nil {
			return l.stop(checkpoint.TriggerShutdown, err)
		}

		content := l.nextContent(first, answered, answer)
		first, answered, answer = false, false, ""
		if IsQuit(content) {
			l.logger.Info("quit requested")
			return l.stop(checkpoint.TriggerQuit, nil)
		}
		l.logger.Debug("user turn", "content_len", len(content))
		l.history.Append(memory.UserTurn(content))

		out, err := l.runTurn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(checkpoint.TriggerShutdown, ctx.Err())
			}
			if l.handleError(ctx, err) {
				return l.stop(checkpoint.TriggerFatal, err)
			}
		} else if out.Answered {
			answered, answer = true, out.Answer
		}

		if err := l.persist.Flush(checkpoint.TriggerTurn); err != nil {
			l.logger.Warn("turn not saved, continuing", "error", err)
		}
	}
}

func (l *Loop) stop(reason checkpoint.Trigger, err error) error {
	l.setState(StateTerminated)
	l.persist.Shutdown(reason)
	l.logger.Info("agent loop stopped", "reason", reason)
	return err
}

// runTurn calls the model and dispatches tools until it answers in
// text, an interactive tool collects an answer, or an error occurs.
func (l *Loop) runTurn(ctx context.Context) (tools.Outcome, error) {
	for round := 0; ; round++ {
		l.setState(StateCallingCompletion)
		resp, err := l.complete(ctx)
		if err != nil {
			return tools.Outcome{}, err
		}

		if !resp.HasToolCalls() {
			l.reply(resp.Message.Content)
			return tools.Outcome{}, nil
		}
		if round >= l.cfg.MaxToolRounds {
			return tools.Outcome{}, fmt.Errorf("%w: %d rounds", errToolRounds, l.cfg.MaxToolRounds)
		}

		calls := toolCalls(resp.Message.ToolCalls)
		l.history.Append(memory.AssistantTurn("", calls))
		l.mem.Record("Tool Call Decision", l.cfg.Model, memory.StatusSuccess, "")
		if text := strings.TrimSpace(resp.Message.Content); text != "" {
			l.logger.Debug("text alongside tool calls dropped", "content_len", len(text))
		}

		l.setState(StateDispatchingTools)
		l.logger.Info("dispatching tools", "count", len(calls), "round", round+1)
		out := l.dispatcher.Dispatch(ctx, calls)
		l.history.Append(out.Results...)
		if out.Answered {
			return out, nil
		}
	}
}

func (l *Loop) complete(ctx context.Context) (*llm.Response, error) {
	req := &llm.Request{
		Model:      l.cfg.Model,
		Messages:   l.project(),
		Tools:      l.registry.Definitions(),
		ToolChoice: llm.ToolChoiceAuto,
	}
	start := time.Now()
	resp, err := l.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("completion returned no response")
	}
	l.logger.Info("completion received",
		"model", resp.Model,
		"tool_calls", len(resp.Message.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return resp, nil
}

func (l *Loop) reply(text string) {
	l.history.Append(memory.AssistantTurn(text, nil))
	l.mem.Record("API Response", l.cfg.Model, memory.StatusSuccess, "")
	l.console.Reply(text)

	for _, f := range l.mem.ApplyFacts(text) {
		l.logger.Info("system info updated", "key", f.Key, "value", f.Value)
	}
}
