package core

import "time"

// ContextSnapshot records the enrichment the orchestrator had available when
// it ran a round. Absent collaborators leave their field zero.
type ContextSnapshot struct {
	LocationHint  *Location `json:"locationHint,omitempty"`
	MemorySummary string    `json:"memorySummary,omitempty"`
}

// Location is a geographic hint supplied by the client or a locator
// collaborator.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ConversationTurn is the persisted record of one completed round: the user
// message, the terminal assistant message, every tool call that actually
// executed, and the context the round ran with. Created exactly once per
// round and handed to the turn store.
type ConversationTurn struct {
	ID                    string            `json:"id"`
	UserID                string            `json:"userId"`
	SessionID             string            `json:"sessionId"`
	UserMessage           string            `json:"userMessage"`
	FinalAssistantMessage string            `json:"finalAssistantMessage"`
	ToolCallsExecuted     []ToolResult      `json:"toolCallsExecuted"`
	ContextSnapshot       ContextSnapshot   `json:"contextSnapshot"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
}

// NewConversationTurn builds a turn with a fresh ID and UTC timestamp.
// ToolCallsExecuted is never nil so persisted turns always round-trip as [].
func NewConversationTurn(userID, sessionID, userMessage, assistantMessage string) *ConversationTurn {
	return &ConversationTurn{
		ID:                    NewID(),
		UserID:                userID,
		SessionID:             sessionID,
		UserMessage:           userMessage,
		FinalAssistantMessage: assistantMessage,
		ToolCallsExecuted:     []ToolResult{},
		Metadata:              map[string]string{},
		CreatedAt:             time.Now().UTC(),
	}
}
