package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Recorder appends to the agent's action log.
type Recorder interface {
	Record(actionType, target string, status memory.Status, errMsg string) memory.ActionLogEntry
}

const actionType = "WebSearch"

// ToolHandler returns a function compatible with the tools.Tool Handler
// signature. Search failures are reported to the model as result text,
// and every query is written to the action log.
func ToolHandler(mgr *Manager, rec Recorder, logger *slog.Logger) func(ctx context.Context, args map[string]any) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web_search")

	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("web_search: query is required")
		}

		rec.Record(actionType, query, memory.StatusAttempted, "")
		results, err := mgr.Search(ctx, query, Options{})
		if err != nil {
			logger.Warn("search failed", "query", query, "error", err)
			rec.Record(actionType, query, memory.StatusFailure, err.Error())
			return fmt.Sprintf("Error performing web search for %q: %v", query, err), nil
		}

		logger.Debug("search complete", "query", query, "results", len(results))
		if len(results) == 0 {
			rec.Record(actionType, query, memory.StatusSuccessNoResult, "")
		} else {
			rec.Record(actionType, query, memory.StatusSuccess, "")
		}
		return FormatResults(query, results), nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the web_search tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query string.",
			},
		},
		"required": []string{"query"},
	}
}
