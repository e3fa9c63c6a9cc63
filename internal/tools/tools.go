// Package tools defines the tools available to the agent and the
// dispatcher that executes the model's tool calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/omaremad10/nivuus-agent/internal/llm"
)

// Handler executes a tool with arguments bound by parameter name.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	// Interactive tools collect operator input. A successful call ends
	// the tool round and its result becomes the next user turn.
	Interactive bool    `json:"-"`
	Handler     Handler `json:"-"`

	schema *jsonschema.Schema
}

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry holds available tools. Lookup is by exact name and
// definitions are listed in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles the tool's parameter schema and adds it to the
// registry, replacing any tool with the same name.
func (r *Registry) Register(t *Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return fmt.Errorf("invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s missing handler", t.Name)
	}
	schema, err := compileSchema(t.Name, t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", t.Name, err)
	}
	t.schema = schema

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns all tools in the shape sent to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validate checks args against the compiled schema and returns a
// one-line description of the first problems found.
func (t *Tool) validate(args map[string]any) error {
	if t.schema == nil {
		return nil
	}
	err := t.schema.Validate(args)
	if err == nil {
		return nil
	}
	return &ErrInvalidArguments{ToolName: t.Name, Detail: validationDetail(err)}
}

func validationDetail(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var leaves []string
	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			collect(c)
		}
	}
	collect(ve)
	return strings.Join(leaves, "; ")
}

// Argument accessors. Arguments have passed schema validation, so a
// failed assertion means an optional parameter was omitted.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
