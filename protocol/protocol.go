// Package protocol defines the JSON frames exchanged with clients over the
// websocket transport. One frame per websocket message, discriminated by the
// "type" field.
package protocol

import "github.com/voyagerhq/concierge/core"

// Inbound frame types.
const (
	TypeChat           = "chat"
	TypePing           = "ping"
	TypeContextRequest = "context_request"
)

// Outbound frame types.
const (
	TypeTyping          = "typing"
	TypeChatResponse    = "chat_response"
	TypeSafetyWarning   = "safety_warning"
	TypeError           = "error"
	TypePong            = "pong"
	TypeContextSnapshot = "context_snapshot"
)

// Error codes carried by error frames.
const (
	CodeBadFrame         = "bad_frame"
	CodeRateLimited      = "rate_limited"
	CodeDuplicateSession = "duplicate_session"
	CodeModelService     = "model_service"
	CodePersistence      = "persistence"
	CodeInternal         = "internal"
)

// InboundContext is optional client-supplied enrichment on a chat frame.
type InboundContext struct {
	Region        string         `json:"region,omitempty"`
	Location      *core.Location `json:"location,omitempty"`
	RecentHistory []string       `json:"recentHistory,omitempty"`
}

// Inbound is a client-to-core frame.
type Inbound struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Context   *InboundContext `json:"context,omitempty"`
}

// Outbound is a core-to-client frame. Only the fields relevant to the
// frame's type are populated.
type Outbound struct {
	Type      string                `json:"type"`
	Response  string                `json:"response,omitempty"`
	UIAction  map[string]any        `json:"uiAction"`
	SessionID string                `json:"sessionId,omitempty"`
	Metadata  map[string]string     `json:"metadata,omitempty"`
	Message   string                `json:"message,omitempty"`
	Code      string                `json:"code,omitempty"`
	Snapshot  *core.ContextSnapshot `json:"snapshot,omitempty"`
}

// Typing signals that a chat frame was accepted and a round started.
func Typing() Outbound {
	return Outbound{Type: TypeTyping}
}

// ChatResponse is the terminal frame of a successful round.
func ChatResponse(sessionID, response string, metadata map[string]string) Outbound {
	return Outbound{
		Type:      TypeChatResponse,
		Response:  response,
		SessionID: sessionID,
		Metadata:  metadata,
	}
}

// SafetyWarning tells the client its message was blocked before any model
// call.
func SafetyWarning(message string) Outbound {
	return Outbound{Type: TypeSafetyWarning, Message: message}
}

// Error reports a failure the client should surface or react to.
func Error(code, message string) Outbound {
	return Outbound{Type: TypeError, Code: code, Message: message}
}

// Pong answers a ping frame.
func Pong() Outbound {
	return Outbound{Type: TypePong}
}

// ContextSnapshotFrame answers a context_request frame with the enrichment
// currently available for the session's user.
func ContextSnapshotFrame(sessionID string, snap core.ContextSnapshot) Outbound {
	return Outbound{Type: TypeContextSnapshot, SessionID: sessionID, Snapshot: &snap}
}

// Validate checks the structural requirements of an inbound frame and
// returns a client-facing reason when it is malformed.
func (f Inbound) Validate() (string, bool) {
	switch f.Type {
	case TypeChat:
		if f.Message == "" {
			return "chat frame requires a message", false
		}
		return "", true
	case TypePing, TypeContextRequest:
		return "", true
	case "":
		return "frame requires a type", false
	default:
		return "unsupported frame type: " + f.Type, false
	}
}
