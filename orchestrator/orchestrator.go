// Package orchestrator drives one conversation round end to end: screening,
// context assembly, the model/tool loop, response emission and turn
// persistence. It owns no connection state; the gateway serializes rounds
// per session and calls in with an emit callback.
package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/voyagerhq/concierge/assemble"
	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/logging"
	"github.com/voyagerhq/concierge/memory"
	"github.com/voyagerhq/concierge/metrics"
	"github.com/voyagerhq/concierge/model"
	"github.com/voyagerhq/concierge/protocol"
	"github.com/voyagerhq/concierge/safety"
	"github.com/voyagerhq/concierge/store"
	"github.com/voyagerhq/concierge/tool"
)

// Round limits. A round that exhausts any of them terminates with a
// degraded textual response instead of looping or hanging.
const (
	DefaultMaxToolIterations = 4
	DefaultRoundBudget       = 30 * time.Second
	DefaultModelTimeout      = 15 * time.Second
	DefaultRetryBackoff      = 500 * time.Millisecond

	persistRetries = 2
)

// Fixed user-facing texts for degraded terminations.
const (
	textSafetyWarning = "I can't help with that message. Please rephrase your request."
	textModelFailure  = "I'm having trouble thinking right now. Please try again in a moment."
	textBudgetExpired = "That took longer than I'm allowed to spend on one request. Could you try again?"
	textIterationCap  = "That request needed more steps than I can take in one go. Could you break it into smaller parts?"
)

// Round outcomes, as recorded in metrics and turn metadata.
const (
	outcomeAnswered     = "answered"
	outcomeBlocked      = "blocked"
	outcomeModelFailure = "model_failure"
	outcomeBudget       = "budget_exceeded"
	outcomeIterationCap = "iteration_cap"
)

// EmitFunc delivers one outbound frame to the session's client. The gateway
// supplies it; emission must not block on the round's context.
type EmitFunc func(frame protocol.Outbound)

// Auditor receives security-audit records for blocked messages.
type Auditor interface {
	RecordViolation(ctx context.Context, userID, sessionID string, reasons []string)
}

// Options configure the orchestrator.
type Options struct {
	Logger            logging.Logger
	Metrics           *metrics.Metrics
	Auditor           Auditor
	Instructions      string
	HistoryCap        int
	MaxToolIterations int
	RoundBudget       time.Duration
	ModelTimeout      time.Duration
	RetryBackoff      time.Duration
}

// Orchestrator implements the round state machine over its collaborators.
// Safe for concurrent use across sessions; per-session serialization is the
// gateway's job.
type Orchestrator struct {
	gate       *safety.Gate
	assembler  *assemble.Assembler
	mdl        model.Model
	dispatcher *tool.Dispatcher
	catalogue  *tool.Registry
	mem        memory.Store
	turns      store.TurnStore

	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics
}

// New wires an orchestrator from its collaborators.
func New(
	gate *safety.Gate,
	assembler *assemble.Assembler,
	mdl model.Model,
	dispatcher *tool.Dispatcher,
	catalogue *tool.Registry,
	mem memory.Store,
	turns store.TurnStore,
	optFns ...func(o *Options),
) *Orchestrator {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		HistoryCap:        core.DefaultHistoryCap,
		MaxToolIterations: DefaultMaxToolIterations,
		RoundBudget:       DefaultRoundBudget,
		ModelTimeout:      DefaultModelTimeout,
		RetryBackoff:      DefaultRetryBackoff,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		gate:       gate,
		assembler:  assembler,
		mdl:        mdl,
		dispatcher: dispatcher,
		catalogue:  catalogue,
		mem:        mem,
		turns:      turns,
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// ProcessChat runs one round for an inbound chat frame. It always emits a
// terminal frame before returning (safety warning, chat response or error)
// unless ctx is cancelled mid-round. Errors are fully handled internally;
// the gateway has nothing to do with the return beyond logging.
func (o *Orchestrator) ProcessChat(ctx context.Context, userID, sessionID, text string, emit EmitFunc) {
	start := time.Now()

	verdict := o.gate.Screen(text)
	if !verdict.Allowed {
		o.blockMessage(ctx, userID, sessionID, verdict, emit)
		o.metrics.RoundCompleted(outcomeBlocked, time.Since(start), 0)
		return
	}

	emit(protocol.Typing())

	roundCtx, cancel := context.WithTimeout(ctx, o.opts.RoundBudget)
	defer cancel()

	bundle, err := o.assembler.Assemble(roundCtx, userID)
	if err != nil {
		// Only a dead parent context lands here; nothing left to emit to.
		o.logger.Warn("round.cancelled_during_assembly", "user_id", userID, "session_id", sessionID)
		return
	}

	history := core.NewBoundedHistoryFrom(o.opts.HistoryCap, bundle.History)
	userMsg := core.NewUserMessage(text)
	history.Append(userMsg)
	newMessages := []core.Message{userMsg}

	var (
		executed   []core.ToolResult
		iterations int
		outcome    = outcomeIterationCap
		finalText  = textIterationCap
	)

	for iterations < o.opts.MaxToolIterations {
		iterations++
		resp, err := o.callModel(roundCtx, model.Request{
			Instructions: o.instructions(bundle),
			History:      history.Messages(),
			Tools:        o.catalogue.Definitions(),
			Metadata:     map[string]string{"session_id": sessionID},
		})
		if err != nil {
			if roundCtx.Err() != nil {
				outcome, finalText = outcomeBudget, textBudgetExpired
			} else {
				outcome, finalText = outcomeModelFailure, textModelFailure
			}
			rec := core.NewError(core.KindModelService, err.Error(), "user_id", userID, "session_id", sessionID)
			o.logger.Error("round.model_failed", "user_id", userID, "session_id", sessionID,
				"kind", string(rec.Kind), "error", err.Error())
			break
		}

		if !resp.HasToolCalls() {
			outcome, finalText = outcomeAnswered, resp.Text
			break
		}

		// Tool calls run strictly sequentially in the order proposed; later
		// calls may depend on earlier writes.
		callMsg := core.NewToolCallMessage(resp.ToolCalls)
		results := make([]core.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, o.dispatcher.Invoke(roundCtx, userID, call))
		}
		resultMsg := core.NewToolResultMessage(results)
		history.AppendExchange(callMsg, resultMsg)
		newMessages = append(newMessages, callMsg, resultMsg)
		executed = append(executed, results...)

		if roundCtx.Err() != nil {
			outcome, finalText = outcomeBudget, textBudgetExpired
			break
		}
	}

	assistantMsg := core.NewAssistantMessage(finalText)
	history.Append(assistantMsg)
	newMessages = append(newMessages, assistantMsg)

	turn := core.NewConversationTurn(userID, sessionID, text, finalText)
	turn.ToolCallsExecuted = append(turn.ToolCallsExecuted, executed...)
	turn.ContextSnapshot = bundle.Snapshot()
	turn.Metadata["outcome"] = outcome
	turn.Metadata["iterations"] = strconv.Itoa(iterations)

	emit(protocol.ChatResponse(sessionID, finalText, map[string]string{"turnId": turn.ID}))

	o.persist(ctx, turn, newMessages, emit)

	o.metrics.RoundCompleted(outcome, time.Since(start), iterations)
	o.logger.Info("round.completed", "user_id", userID, "session_id", sessionID,
		"outcome", outcome, "iterations", iterations, "tool_calls", len(executed))
}

// ProcessContextRequest answers a context_request frame with the current
// enrichment bundle, without running a round.
func (o *Orchestrator) ProcessContextRequest(ctx context.Context, userID, sessionID string, emit EmitFunc) {
	bundle, err := o.assembler.Assemble(ctx, userID)
	if err != nil {
		return
	}
	emit(protocol.ContextSnapshotFrame(sessionID, bundle.Snapshot()))
}

func (o *Orchestrator) blockMessage(ctx context.Context, userID, sessionID string, verdict safety.Verdict, emit EmitFunc) {
	for _, reason := range verdict.Reasons {
		o.metrics.SafetyBlocked(reason)
	}
	if o.opts.Auditor != nil {
		o.opts.Auditor.RecordViolation(ctx, userID, sessionID, verdict.Reasons)
	}
	rec := core.NewError(core.KindSafetyViolation, "message blocked by safety gate",
		"user_id", userID, "session_id", sessionID, "reasons", verdict.Reasons)
	o.logger.Warn("round.blocked", "user_id", userID, "session_id", sessionID,
		"kind", string(rec.Kind), "reasons", verdict.Reasons)
	emit(protocol.SafetyWarning(textSafetyWarning))
}

// callModel runs one generate with the model timeout, retrying once with
// backoff on a transient failure.
func (o *Orchestrator) callModel(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := o.generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	o.metrics.ModelRetried()
	o.logger.Warn("round.model_retry", "error", err.Error())
	select {
	case <-time.After(o.opts.RetryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.generate(ctx, req)
}

func (o *Orchestrator) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	mctx, cancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.mdl.Generate(mctx, req)
	o.metrics.ModelCall(time.Since(start), err != nil)
	return resp, err
}

// persist writes the round's messages to memory and the turn to the turn
// store. It runs on a context detached from cancellation: a round past its
// write point completes its writes even when the client is gone. Failures
// degrade to a warning frame, never to a lost response.
func (o *Orchestrator) persist(ctx context.Context, turn *core.ConversationTurn, msgs []core.Message, emit EmitFunc) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.mem.Append(pctx, turn.UserID, msgs...); err != nil {
		o.logger.Error("round.memory_append_failed", "user_id", turn.UserID, "error", err.Error())
	}

	var err error
	for attempt := 0; attempt <= persistRetries; attempt++ {
		if err = o.turns.SaveTurn(pctx, turn); err == nil {
			return
		}
	}
	rec := core.NewError(core.KindPersistence, err.Error(), "turn_id", turn.ID, "user_id", turn.UserID)
	o.logger.Error("round.persist_failed", "turn_id", turn.ID, "user_id", turn.UserID,
		"kind", string(rec.Kind), "error", err.Error())
	emit(protocol.Error(protocol.CodePersistence, "your message was answered but could not be saved"))
}

// instructions renders the system prompt for one round, folding in the
// assembled enrichment.
func (o *Orchestrator) instructions(bundle assemble.Bundle) string {
	text := o.opts.Instructions
	if text == "" {
		text = "You are a helpful travel concierge. Use the available tools to act on the user's behalf."
	}
	if bundle.MemorySummary != "" {
		text += "\n\nWhat you remember about this user: " + bundle.MemorySummary
	}
	if bundle.LocationHint != nil {
		text += "\n\nThe user is near lat " + strconv.FormatFloat(bundle.LocationHint.Lat, 'f', 4, 64) +
			", lng " + strconv.FormatFloat(bundle.LocationHint.Lng, 'f', 4, 64) + "."
	}
	return text
}
