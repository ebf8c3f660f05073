package model

import (
	"context"

	"github.com/voyagerhq/concierge/core"
)

// ToolDefinition declaratively exposes a callable operation to the model.
// InputSchema is a JSON Schema object (draft agnostic, minimal subset).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Request captures the normalized model input produced by the orchestrator:
// system instructions, the bounded history window and the tool catalogue.
type Request struct {
	Instructions string            `json:"instructions"`
	History      []core.Message    `json:"history"`
	Tools        []ToolDefinition  `json:"tools,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Stop conditions reported by providers, normalized.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the terminal output of one model call. When FinishReason is
// FinishToolCalls, ToolCalls holds the proposals in the order the model
// emitted them and Text may carry an optional preamble.
type Response struct {
	Text         string          `json:"text"`
	ToolCalls    []core.ToolCall `json:"toolCalls,omitempty"`
	FinishReason string          `json:"finishReason"`
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model requested tool execution.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the orchestrator to drive
// generation. Generate blocks until the provider returns a terminal
// response; streaming is a transport concern this engine does not surface.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}
