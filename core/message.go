package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation roles. The engine only ever produces these three; "system"
// instructions are passed to the model out of band and never stored in
// history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one immutable entry in a conversation. Exactly one of the
// following shapes is populated:
//   - user text:        Role=user, Text set
//   - assistant text:   Role=assistant, Text set
//   - assistant calls:  Role=assistant, ToolCalls set (Text optional preamble)
//   - tool results:     Role=tool, ToolResults set
type Message struct {
	Role        string       `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewUserMessage creates a user-authored text message stamped now.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant text message stamped now.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}
}

// NewToolCallMessage creates an assistant message carrying proposed tool
// calls, preserving the order the model emitted them.
func NewToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolResultMessage creates a tool-role message carrying the results for a
// preceding assistant tool-call message.
func NewToolResultMessage(results []ToolResult) Message {
	return Message{Role: RoleTool, ToolResults: results, Timestamp: time.Now().UTC()}
}

// ToolCall is an untrusted tool invocation proposal surfaced by the model.
// RawArguments is whatever the model produced; nothing here has been
// validated.
type ToolCall struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	RawArguments json.RawMessage `json:"rawArguments,omitempty"`
}

// ValidatedToolCall exists only after the dispatcher has validated the raw
// arguments against the tool's schema. It is the sole form ever handed to a
// side-effecting operation.
type ValidatedToolCall struct {
	ID             string
	Name           string
	TypedArguments map[string]any
}

// ToolResult is the outcome of one tool call, fed back into the message
// stream as part of a tool-role message. ErrorSummary is already sanitized
// for model (and therefore user) consumption.
type ToolResult struct {
	ToolCallID   string `json:"toolCallId"`
	Name         string `json:"name"`
	Success      bool   `json:"success"`
	Payload      any    `json:"payload,omitempty"`
	ErrorSummary string `json:"errorSummary,omitempty"`
}

// NewID generates a unique identifier for sessions, turns and tool calls.
func NewID() string { return uuid.NewString() }
