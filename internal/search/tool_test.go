package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

func TestToolHandler_LogsOutcome(t *testing.T) {
	tests := []struct {
		name       string
		provider   *mockProvider
		wantStatus memory.Status
		wantText   string
	}{
		{
			name:       "results",
			provider:   &mockProvider{name: "p", results: []Result{{Title: "T", URL: "https://t"}}},
			wantStatus: memory.StatusSuccess,
			wantText:   "1. T",
		},
		{
			name:       "no results",
			provider:   &mockProvider{name: "p"},
			wantStatus: memory.StatusSuccessNoResult,
			wantText:   "No web search results",
		},
		{
			name:       "failure",
			provider:   &mockProvider{name: "p", err: errors.New("timeout")},
			wantStatus: memory.StatusFailure,
			wantText:   `Error performing web search for "weather": timeout`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewManager("p")
			mgr.Register(tt.provider)
			mem := memory.New(10)

			out, err := ToolHandler(mgr, mem, nil)(context.Background(), map[string]any{"query": "weather"})
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantText)

			actions := mem.Actions()
			require.Len(t, actions, 2)
			assert.Equal(t, "WebSearch", actions[0].ActionType)
			assert.Equal(t, memory.StatusAttempted, actions[0].Status)
			assert.Equal(t, "weather", actions[1].Target)
			assert.Equal(t, tt.wantStatus, actions[1].Status)
		})
	}
}

func TestToolHandler_RequiresQuery(t *testing.T) {
	_, err := ToolHandler(NewManager("p"), memory.New(10), nil)(context.Background(), map[string]any{})
	assert.Error(t, err)
}
