package core

import "fmt"

// ErrorKind classifies every failure the engine raises. The kind decides the
// propagation policy: dispatcher kinds fold into ToolResults, session and
// safety kinds end a round early, persistence degrades to a warning.
type ErrorKind string

const (
	// KindValidation marks bad tool arguments; recoverable, fed back to the
	// model as a failed ToolResult.
	KindValidation ErrorKind = "validation"
	// KindUnknownTool marks a proposal naming a tool outside the catalogue.
	KindUnknownTool ErrorKind = "unknown_tool"
	// KindSafetyViolation marks input rejected by the safety gate.
	KindSafetyViolation ErrorKind = "safety_violation"
	// KindModelService marks a model call failure that survived the retry.
	KindModelService ErrorKind = "model_service"
	// KindOperation marks a domain collaborator failure during execution.
	KindOperation ErrorKind = "operation"
	// KindPersistence marks a turn-save failure after retries.
	KindPersistence ErrorKind = "persistence"
	// KindDuplicateSession marks a connect for a user who is already online.
	KindDuplicateSession ErrorKind = "duplicate_session"
)

// ErrorRecord is the uniform shape of every raised failure. Message is safe
// for logs; user-facing frames always substitute a generic summary. Context
// carries structured detail (user, session, tool name, field).
type ErrorRecord struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates an ErrorRecord of the given kind. The variadic key/value
// pairs populate Context; a trailing unpaired key is dropped.
func NewError(kind ErrorKind, message string, kv ...any) *ErrorRecord {
	rec := &ErrorRecord{Kind: kind, Message: message}
	if len(kv) > 1 {
		rec.Context = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			rec.Context[key] = kv[i+1]
		}
	}
	return rec
}

// KindOf returns the kind of err when it is an ErrorRecord, or "" otherwise.
func KindOf(err error) ErrorKind {
	if rec, ok := err.(*ErrorRecord); ok {
		return rec.Kind
	}
	return ""
}
