// Package core defines the shared data model of the conversation engine:
// messages, the bounded history window, tool call / tool result shapes, the
// persisted conversation turn and the uniform error record used across
// components. Types here carry no behavior beyond their own invariants so
// higher layers (orchestrator, gateway, tool dispatcher) can exchange them
// without import cycles.
package core
