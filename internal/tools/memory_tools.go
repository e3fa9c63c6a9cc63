package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// MemoryPaths is path-addressed access to the memory document.
// *memory.Memory satisfies it.
type MemoryPaths interface {
	Keys(path string) ([]string, error)
	Get(path string) (any, error)
	Set(path string, value any) error
}

// MemoryTools exposes the memory document to the model.
type MemoryTools struct {
	mem MemoryPaths
}

// NewMemoryTools creates memory tools over mem.
func NewMemoryTools(mem MemoryPaths) *MemoryTools {
	return &MemoryTools{mem: mem}
}

// Tools returns get_memory_keys, get_memory_value and set_memory_value.
func (mt *MemoryTools) Tools() []*Tool {
	return []*Tool{
		{
			Name:        "get_memory_keys",
			Description: "List the keys stored at a memory path (dot-separated, e.g. system_info). Omit path for the top level.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Dot-separated memory path; empty for the root",
					},
				},
			},
			Handler: mt.handleKeys,
		},
		{
			Name:        "get_memory_value",
			Description: "Read the value stored at a dot-separated memory path (e.g. system_info.os or notes).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Dot-separated memory path",
					},
				},
				"required": []string{"path"},
			},
			Handler: mt.handleGet,
		},
		{
			Name:        "set_memory_value",
			Description: "Store a value at a dot-separated memory path, creating intermediate objects. action_log is read-only.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Dot-separated memory path",
					},
					"value": map[string]any{
						"description": "Value to store (any JSON value)",
					},
				},
				"required": []string{"path", "value"},
			},
			Handler: mt.handleSet,
		},
	}
}

func (mt *MemoryTools) handleKeys(_ context.Context, args map[string]any) (string, error) {
	keys, err := mt.mem.Keys(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	return marshalResult(keys)
}

func (mt *MemoryTools) handleGet(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	v, err := mt.mem.Get(path)
	if errors.Is(err, memory.ErrPathNotFound) {
		return fmt.Sprintf("Error: Path not found in memory: %s", path), nil
	}
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return marshalResult(v)
}

func (mt *MemoryTools) handleSet(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	if err := mt.mem.Set(path, args["value"]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory updated: %s", path), nil
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
