package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/omaremad10/nivuus-agent/internal/httpkit"
)

const openAIProvider = "openai"

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for baseURL (e.g.
// https://api.openai.com/v1). Extra httpkit options are applied after
// the defaults.
func NewOpenAIClient(baseURL, apiKey string, logger *slog.Logger, opts ...httpkit.ClientOption) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	base := []httpkit.ClientOption{
		httpkit.WithTimeout(5 * time.Minute),
		httpkit.WithRetry(2, 2*time.Second),
		httpkit.WithLogger(logger),
	}
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(append(base, opts...)...),
		logger:     logger.With("provider", openAIProvider),
	}
}

type openAIRequest struct {
	Model      string          `json:"model"`
	Messages   []openAIMessage `json:"messages"`
	Tools      []openAITool    `json:"tools,omitempty"`
	ToolChoice string          `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func toOpenAIMessages(msgs []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openAIMessage{Role: m.Role, ToolCallID: m.ToolCallID, Name: m.Name}
		if len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				var c openAIToolCall
				c.ID = tc.ID
				c.Type = "function"
				c.Function.Name = tc.Name
				c.Function.Arguments = tc.Arguments
				om.ToolCalls = append(om.ToolCalls, c)
			}
			if m.Content != "" {
				content := m.Content
				om.Content = &content
			}
		} else {
			content := m.Content
			om.Content = &content
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openAITool {
	out := make([]openAITool, 0, len(defs))
	for _, d := range defs {
		var t openAITool
		t.Type = "function"
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Parameters
		out = append(out, t)
	}
	return out
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	body := openAIRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
		if body.ToolChoice == "" {
			body.ToolChoice = ToolChoiceAuto
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("sending completion request",
		"model", req.Model,
		"messages", len(body.Messages),
		"tools", len(body.Tools),
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Provider: openAIProvider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		msg := errBody
		var parsed openAIErrorBody
		if json.Unmarshal([]byte(errBody), &parsed) == nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, ErrorFromHTTPStatus(openAIProvider, resp.StatusCode, msg,
			ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindUnknown, Provider: openAIProvider, Message: "decode response", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &Error{Kind: KindUnknown, Provider: openAIProvider, Message: "no response choices"}
	}

	choice := out.Choices[0]
	msg := Message{Role: RoleAssistant}
	if choice.Message.Content != nil {
		msg.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	c.logger.Debug("completion received",
		"model", out.Model,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(msg.ToolCalls),
		"input_tokens", out.Usage.PromptTokens,
		"output_tokens", out.Usage.CompletionTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Response{
		Model:        out.Model,
		Message:      msg,
		FinishReason: choice.FinishReason,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}
