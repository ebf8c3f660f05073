// Package gateway owns the connection lifecycle: the websocket server, the
// one-session-per-user registry and the per-session worker that serializes
// rounds. No other component tracks who is online.
package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voyagerhq/concierge/core"
	"github.com/voyagerhq/concierge/logging"
	"github.com/voyagerhq/concierge/metrics"
	"github.com/voyagerhq/concierge/orchestrator"
	"github.com/voyagerhq/concierge/protocol"
)

// Session states.
const (
	StateActive  = "active"
	StateClosing = "closing"
	StateClosed  = "closed"
)

// Registry tuning defaults.
const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultQueueSize     = 16
	DefaultSweepInterval = 30 * time.Second

	defaultFrameRate  = 2 // frames per second per session
	defaultFrameBurst = 5
)

// Conn is the transport half the registry holds for a session. The
// websocket server's write pump implements it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// RoundHandler processes frames for one session; implemented by the
// orchestrator.
type RoundHandler interface {
	ProcessChat(ctx context.Context, userID, sessionID, text string, emit orchestrator.EmitFunc)
	ProcessContextRequest(ctx context.Context, userID, sessionID string, emit orchestrator.EmitFunc)
}

// Session is one registered connection. Owned exclusively by the registry;
// its worker goroutine is the only consumer of the frame queue, which
// serializes rounds per session by construction.
type Session struct {
	SessionID string
	UserID    string

	conn    Conn
	queue   chan protocol.Inbound
	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu             sync.Mutex
	state          string
	queueClosed    bool
	createdAt      time.Time
	lastActivityAt time.Time
}

// enqueue attempts a non-blocking queue insert. The mutex orders it against
// closeQueue so a racing disconnect can never provoke a send on a closed
// channel. Returns (accepted, full).
func (s *Session) enqueue(frame protocol.Inbound) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueClosed {
		return false, false
	}
	select {
	case s.queue <- frame:
		return true, false
	default:
		return false, true
	}
}

func (s *Session) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.queueClosed {
		s.queueClosed = true
		close(s.queue)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// State returns the session's lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// emit writes one frame to the session's client. Write failures are
// tolerated; the read side notices the dead transport and disconnects.
func (s *Session) emit(frame protocol.Outbound) {
	_ = s.conn.WriteJSON(frame)
}

// Options configure the registry.
type Options struct {
	Logger        logging.Logger
	Metrics       *metrics.Metrics
	IdleTimeout   time.Duration
	QueueSize     int
	SweepInterval time.Duration
	FrameRate     rate.Limit
	FrameBurst    int
}

// Registry enforces one active session per user and routes inbound frames
// to the round handler, one round at a time per session.
type Registry struct {
	handler RoundHandler
	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	byUser    map[string]*Session
	bySession map[string]*Session
}

// NewRegistry builds a registry over the given round handler.
func NewRegistry(handler RoundHandler, optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		IdleTimeout:   DefaultIdleTimeout,
		QueueSize:     DefaultQueueSize,
		SweepInterval: DefaultSweepInterval,
		FrameRate:     defaultFrameRate,
		FrameBurst:    defaultFrameBurst,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		handler:   handler,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		byUser:    make(map[string]*Session),
		bySession: make(map[string]*Session),
	}
}

// Connect registers a session for userID over conn and starts its worker.
// A user already holding an active session gets a duplicate-session error
// unless evictExisting is set, in which case the prior session is
// disconnected first. Reconnects always produce a brand-new session;
// there is no resumption.
func (r *Registry) Connect(userID string, conn Conn, evictExisting bool) (string, error) {
	now := time.Now()
	sess := &Session{
		SessionID:      core.NewID(),
		UserID:         userID,
		conn:           conn,
		queue:          make(chan protocol.Inbound, r.opts.QueueSize),
		limiter:        rate.NewLimiter(r.opts.FrameRate, r.opts.FrameBurst),
		state:          StateActive,
		createdAt:      now,
		lastActivityAt: now,
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	// Removing the prior session and inserting the new one happens under a
	// single lock hold, so two racing connects for the same user can never
	// both end up registered. Transport teardown runs after the maps are
	// consistent.
	r.mu.Lock()
	prior, hadPrior := r.byUser[userID]
	if hadPrior && !evictExisting {
		r.mu.Unlock()
		cancel()
		return "", core.NewError(core.KindDuplicateSession,
			"user already has an active session", "user_id", userID, "session_id", prior.SessionID)
	}
	if hadPrior {
		delete(r.bySession, prior.SessionID)
	}
	r.byUser[userID] = sess
	r.bySession[sess.SessionID] = sess
	r.mu.Unlock()

	if hadPrior {
		r.teardown(prior, "evicted by new connection")
	}

	go r.worker(ctx, sess)

	r.metrics.SessionOpened()
	r.logger.Info("session.connected", "user_id", userID, "session_id", sess.SessionID)
	return sess.SessionID, nil
}

// Dispatch routes one inbound frame to a session. A frame for an unknown or
// non-active session is dropped with an error frame where possible; a frame
// arriving while a round is in flight queues and processes in arrival
// order; a full queue or a rate-limit breach rejects the frame.
func (r *Registry) Dispatch(sessionID string, frame protocol.Inbound) {
	r.mu.RLock()
	sess, ok := r.bySession[sessionID]
	r.mu.RUnlock()
	if !ok {
		r.metrics.FrameRejected("unknown_session")
		return
	}
	if sess.State() != StateActive {
		r.metrics.FrameRejected("session_not_active")
		return
	}

	sess.touch()

	if !sess.limiter.Allow() {
		r.metrics.FrameRejected("rate_limited")
		sess.emit(protocol.Error(protocol.CodeRateLimited, "too many messages, slow down"))
		return
	}

	accepted, full := sess.enqueue(frame)
	if full {
		r.metrics.FrameRejected("queue_full")
		sess.emit(protocol.Error(protocol.CodeRateLimited, "too many pending messages"))
	} else if !accepted {
		r.metrics.FrameRejected("session_not_active")
	}
}

// Disconnect releases a session: cancels its in-flight round, stops the
// worker, closes the transport and removes the entry. Safe to call twice.
func (r *Registry) Disconnect(sessionID, reason string) {
	r.mu.Lock()
	sess, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.bySession, sessionID)
	if r.byUser[sess.UserID] == sess {
		delete(r.byUser, sess.UserID)
	}
	r.mu.Unlock()

	r.teardown(sess, reason)
}

// teardown stops a session that has already been removed from the maps:
// cancels its in-flight round, stops the worker and closes the transport.
// Exactly one caller ever reaches it per session; removal from bySession is
// the gate.
func (r *Registry) teardown(sess *Session, reason string) {
	sess.setState(StateClosing)
	sess.cancel()
	sess.closeQueue()
	_ = sess.conn.Close()
	sess.setState(StateClosed)

	r.metrics.SessionClosed()
	r.logger.Info("session.disconnected", "user_id", sess.UserID, "session_id", sess.SessionID, "reason", reason)
}

// SessionFor reports the active session ID for a user, if any.
func (r *Registry) SessionFor(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byUser[userID]
	if !ok {
		return "", false
	}
	return sess.SessionID, true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// Run sweeps idle sessions until ctx is done. Intended to run once as a
// background goroutine.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	cutoff := time.Now().Add(-r.opts.IdleTimeout)
	r.mu.RLock()
	var idle []string
	for id, sess := range r.bySession {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range idle {
		r.Disconnect(id, "idle timeout")
	}
}

// worker drains the session's queue one frame at a time. At most one round
// is in flight per session; queued frames process in arrival order.
func (r *Registry) worker(ctx context.Context, sess *Session) {
	for frame := range sess.queue {
		if ctx.Err() != nil {
			return
		}
		r.handleFrame(ctx, sess, frame)
	}
}

func (r *Registry) handleFrame(ctx context.Context, sess *Session, frame protocol.Inbound) {
	switch frame.Type {
	case protocol.TypeChat:
		r.handler.ProcessChat(ctx, sess.UserID, sess.SessionID, frame.Message, sess.emit)
	case protocol.TypePing:
		sess.emit(protocol.Pong())
	case protocol.TypeContextRequest:
		r.handler.ProcessContextRequest(ctx, sess.UserID, sess.SessionID, sess.emit)
	default:
		sess.emit(protocol.Error(protocol.CodeBadFrame, "unsupported frame type: "+frame.Type))
	}
}
