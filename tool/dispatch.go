package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/internal/schema"
	"github.com/voyagerhq/concierge/logging"
)

// Generic summaries fed back to the model. Raw internal error text never
// leaves the dispatcher.
const (
	summaryUnknownTool = "unknown tool"
	summaryOperation   = "the operation failed; please try again or rephrase"
)

// Observer receives dispatch outcomes; satisfied by the metrics package.
type Observer interface {
	ToolInvoked(name string, success bool, duration time.Duration)
}

// Options holds dependency overrides passed to NewDispatcher.
type Options struct {
	Logger   logging.Logger
	Observer Observer
}

// Dispatcher validates tool-call proposals and invokes the bound operation.
// It is the only path from a model proposal to a side effect: no ToolCall's
// arguments reach a handler without passing validation, and the caller
// identity is always the authenticated session's.
type Dispatcher struct {
	registry *Registry
	logger   logging.Logger
	observer Observer
}

// NewDispatcher constructs a Dispatcher over the given catalogue.
func NewDispatcher(registry *Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{registry: registry, logger: opts.Logger, observer: opts.Observer}
}

// Invoke runs one tool call end to end and always returns a ToolResult; no
// error escapes as a Go error so the round loop can feed failures back to
// the model. Steps: resolve the operation, validate raw arguments against
// its schema, force the authenticated userID over anything the model
// supplied, execute, sanitize the payload.
func (d *Dispatcher) Invoke(ctx context.Context, userID string, call core.ToolCall) core.ToolResult {
	start := time.Now()
	result := d.invoke(ctx, userID, call)
	if d.observer != nil {
		d.observer.ToolInvoked(call.Name, result.Success, time.Since(start))
	}
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, userID string, call core.ToolCall) core.ToolResult {
	op, ok := d.registry.Get(call.Name)
	if !ok {
		rec := core.NewError(core.KindUnknownTool, "tool not in catalogue",
			"tool", call.Name, "user_id", userID)
		d.logger.Warn("tool.dispatch.unknown", "tool", call.Name, "user_id", userID, "kind", string(rec.Kind))
		return failure(call, summaryUnknownTool+": "+call.Name)
	}

	args, err := decodeArguments(call.RawArguments)
	if err != nil {
		d.logger.Warn("tool.dispatch.bad_arguments", "tool", call.Name, "user_id", userID, "error", err.Error())
		return failure(call, "arguments are not a valid JSON object")
	}

	if err := schema.Validate(args, op.InputSchema); err != nil {
		vErr, _ := err.(*schema.ValidationError)
		d.logger.Warn("tool.dispatch.validation_failed",
			"tool", call.Name, "user_id", userID, "field", fieldOf(vErr), "error", err.Error())
		return failure(call, "invalid arguments: "+err.Error())
	}

	validated := core.ValidatedToolCall{
		ID:             call.ID,
		Name:           call.Name,
		TypedArguments: forceIdentity(args),
	}

	payload, err := d.execute(ctx, op, userID, validated)
	if err != nil {
		rec := asOperationError(err, call.Name, userID)
		d.logger.Error("tool.dispatch.operation_failed",
			"tool", call.Name, "user_id", userID, "kind", string(rec.Kind), "error", rec.Message)
		return failure(call, summaryOperation)
	}

	d.logger.Info("tool.dispatch.success", "tool", call.Name, "user_id", userID)
	return core.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Success:    true,
		Payload:    SanitizePayload(payload),
	}
}

// execute runs the handler with panic containment; a panicking operation
// must not take the round down.
func (d *Dispatcher) execute(ctx context.Context, op Operation, userID string, call core.ValidatedToolCall) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewError(core.KindOperation, "operation panicked",
				"tool", op.Name, "recover", r)
			d.logger.Error("tool.dispatch.panic", "tool", op.Name, "recover", r)
		}
	}()
	return op.Handler(ctx, userID, call.TypedArguments)
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// identityFields are argument names the model could use to act as another
// user. They are discarded unconditionally; the handler only ever sees the
// authenticated userID passed alongside the arguments.
var identityFields = []string{"user_id", "userId", "uid", "account_id", "accountId", "owner_id", "ownerId"}

func forceIdentity(args map[string]any) map[string]any {
	for _, f := range identityFields {
		delete(args, f)
	}
	return args
}

func asOperationError(err error, toolName, userID string) *core.ErrorRecord {
	if rec, ok := err.(*core.ErrorRecord); ok {
		return rec
	}
	return core.NewError(core.KindOperation, err.Error(), "tool", toolName, "user_id", userID)
}

func failure(call core.ToolCall, summary string) core.ToolResult {
	return core.ToolResult{
		ToolCallID:   call.ID,
		Name:         call.Name,
		Success:      false,
		ErrorSummary: summary,
	}
}

func fieldOf(vErr *schema.ValidationError) string {
	if vErr == nil {
		return ""
	}
	return vErr.Field
}
