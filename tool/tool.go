// Package tool implements the whitelisted operation catalogue and the
// dispatcher that lets the model invoke side-effecting operations with
// schema-validated arguments, a forced caller identity and consistent error
// normalization.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/voyagerhq/concierge/model"
)

// HandlerFunc executes one domain operation. userID always comes from the
// authenticated session, never from model-supplied arguments, and args have
// already passed schema validation.
type HandlerFunc func(ctx context.Context, userID string, args map[string]any) (any, error)

// Operation binds a tool name to its argument schema and handler. The
// description and schema are exposed to the model as the catalogue entry.
type Operation struct {
	// Name is the unique tool identifier (snake_case recommended).
	Name string
	// Description tells the model when and how to use the operation.
	Description string
	// InputSchema is a JSON-Schema-like object schema for the arguments.
	InputSchema map[string]any
	// Handler is the bound side-effecting implementation.
	Handler HandlerFunc
}

// Registry is the fixed catalogue of named operations, resolved by name at
// dispatch time. Registration happens during wiring; lookups are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ops   map[string]Operation
	order []string
}

// NewRegistry constructs an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation to the catalogue. Names are unique; a second
// registration under the same name is a wiring bug and fails loudly.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("tool: operation name must not be empty")
	}
	if op.Handler == nil {
		return fmt.Errorf("tool: operation %q has no handler", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("tool: operation %q already registered", op.Name)
	}
	r.ops[op.Name] = op
	r.order = append(r.order, op.Name)
	return nil
}

// MustRegister registers an operation and panics on error. Intended for
// static wiring in main.
func (r *Registry) MustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Get resolves an operation by name.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Definitions returns the tool catalogue entries in registration order, in
// the shape consumed by the model layer.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		op := r.ops[name]
		defs = append(defs, model.ToolDefinition{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema,
		})
	}
	return defs
}

// Names returns the registered operation names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
