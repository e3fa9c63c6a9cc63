package tools

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Asker collects a free-text answer from the operator.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// AskUserTool returns the interactive ask_user tool. Closed operator
// input is answered with "quit".
func AskUserTool(asker Asker, rec Recorder) *Tool {
	return &Tool{
		Name:        "ask_user",
		Description: "Ask the operator a question and wait for the answer. Use this when the task is done or you need a decision.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question to show the operator",
				},
			},
			"required": []string{"question"},
		},
		Interactive: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rec.Record("User Interaction", "Ask Question", memory.StatusAttempted, "")
			answer, err := asker.Ask(ctx, fmt.Sprintf("\nAssistant asks: %s\nYour answer:", stringArg(args, "question")))
			if errors.Is(err, io.EOF) {
				answer, err = "quit", nil
			}
			if err != nil {
				rec.Record("User Interaction", "Ask Question", memory.StatusFailure, err.Error())
				return "", fmt.Errorf("read answer: %w", err)
			}
			rec.Record("User Interaction", "Ask Question", memory.StatusSuccess, "")
			return answer, nil
		},
	}
}
