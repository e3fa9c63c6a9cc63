package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omaremad10/nivuus-agent/internal/llm"
	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// errToolRounds is returned when the model keeps requesting tools past
// the configured round limit. It classifies as unknown.
var errToolRounds = errors.New("tool round limit reached")

// turnFailure describes how a classified turn error is logged and shown.
type turnFailure struct {
	kind       llm.ErrorKind
	actionType string
	target     string
	notice     string
}

func describeFailure(err error) turnFailure {
	kind := llm.Classify(err)
	f := turnFailure{kind: kind, actionType: "System"}

	var apiErr *llm.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	switch kind {
	case llm.KindAuth:
		f.target = apiTarget(status)
		f.notice = "Authentication with the completion service failed. Check your API key."
	case llm.KindRateLimit:
		f.target = apiTarget(status)
		f.notice = "The completion service is rate limiting requests."
	case llm.KindNetwork:
		f.actionType = "Network"
		f.target = "Completion Request"
		f.notice = fmt.Sprintf("Network error: %v", err)
	case llm.KindMalformedToolArguments:
		f.target = "Tool Argument Parsing"
		f.notice = fmt.Sprintf("The model sent malformed tool arguments: %v", err)
	default:
		if status > 0 {
			f.target = apiTarget(status)
			f.notice = fmt.Sprintf("Completion service error: %v", err)
		} else {
			f.target = "Unexpected Loop Error"
			f.notice = fmt.Sprintf("Unexpected error: %v", err)
		}
	}
	return f
}

func apiTarget(status int) string {
	if status == 0 {
		return "Completion API Error"
	}
	return fmt.Sprintf("Completion API Error: %d", status)
}

// handleError records a turn failure and reports whether it is fatal.
// Non-fatal failures roll history back to just before the latest user
// turn so the next iteration starts clean.
func (l *Loop) handleError(ctx context.Context, err error) (fatal bool) {
	f := describeFailure(err)
	l.mem.Record(f.actionType, f.target, memory.StatusFailure, err.Error())
	l.console.Printf("\n%s\n", f.notice)

	if f.kind.Fatal() {
		l.logger.Error("fatal turn error", "kind", f.kind, "error", err)
		return true
	}

	removed := l.history.TruncateBeforeLastUser()
	l.logger.Warn("turn failed, retrying with truncated history",
		"kind", f.kind,
		"error", err,
		"turns_removed", removed,
	)
	l.console.Printf("An error occurred. Retrying automatically.\n")

	var apiErr *llm.Error
	if f.kind == llm.KindRateLimit && errors.As(err, &apiErr) && apiErr.RetryAfter != nil {
		l.backoff(ctx, *apiErr.RetryAfter)
	}
	return false
}

// backoff waits for d, capped at the configured maximum, or until ctx
// is done.
func (l *Loop) backoff(ctx context.Context, d time.Duration) {
	d = min(d, l.cfg.MaxRetryWait)
	if d <= 0 {
		return
	}
	l.logger.Info("waiting before retry", "delay", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
