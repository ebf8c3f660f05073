package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/voyagerhq/concierge/logging"
	"github.com/voyagerhq/concierge/metrics"
	"github.com/voyagerhq/concierge/protocol"
)

// Server transport defaults.
const (
	DefaultReadLimit    = 64 * 1024
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// ServerOptions configure the websocket server.
type ServerOptions struct {
	Logger       logging.Logger
	Metrics      *metrics.Metrics
	ReadLimit    int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// Server upgrades HTTP requests to websocket sessions and pumps frames
// between the transport and the session registry.
type Server struct {
	registry *Registry
	opts     ServerOptions
	logger   logging.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewServer creates a websocket server over the given registry.
func NewServer(registry *Registry, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		Logger:       logging.NoOpLogger{},
		ReadLimit:    DefaultReadLimit,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		PingInterval: DefaultPingInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
	if s.upgrader.CheckOrigin == nil {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return s
}

// Routes mounts the websocket endpoint on an echo instance.
func (s *Server) Routes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket authenticates, upgrades and registers one connection.
// Identity comes from the X-User-ID header (or user_id query parameter);
// ?evict=true replaces an existing session instead of failing.
func (s *Server) HandleWebSocket(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		userID = c.QueryParam("user_id")
	}
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}
	evict := c.QueryParam("evict") == "true"

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("ws.upgrade_failed", "user_id", userID, "error", err.Error())
		return err
	}

	conn := newWSConn(ws, s.opts.WriteTimeout)
	sessionID, err := s.registry.Connect(userID, conn, evict)
	if err != nil {
		// No write pump is running yet; write the rejection straight to the
		// wire before closing.
		_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		_ = ws.WriteJSON(protocol.Error(protocol.CodeDuplicateSession, "you already have an active session"))
		_ = conn.Close()
		return nil
	}

	go s.writePump(conn)
	go s.readPump(conn, sessionID)
	return nil
}

// readPump reads frames off the transport and routes them through the
// registry. Exit always disconnects the session.
func (s *Server) readPump(conn *wsConn, sessionID string) {
	defer s.registry.Disconnect(sessionID, "transport closed")

	conn.ws.SetReadLimit(s.opts.ReadLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws.read_error", "session_id", sessionID, "error", err.Error())
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

		var frame protocol.Inbound
		if err := json.Unmarshal(message, &frame); err != nil {
			s.metrics.FrameRejected("bad_json")
			_ = conn.WriteJSON(protocol.Error(protocol.CodeBadFrame, "invalid JSON frame"))
			continue
		}
		if reason, ok := frame.Validate(); !ok {
			s.metrics.FrameRejected("bad_frame")
			_ = conn.WriteJSON(protocol.Error(protocol.CodeBadFrame, reason))
			continue
		}
		s.registry.Dispatch(sessionID, frame)
	}
}

// writePump drains the connection's send queue and keeps the transport
// alive with pings.
func (s *Server) writePump(conn *wsConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.done:
			return
		}
	}
}

// wsConn adapts a gorilla connection to the registry's Conn interface with
// a buffered outbound queue so round goroutines never block on a slow
// client.
type wsConn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		ws:           ws,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// WriteJSON implements Conn. A full buffer drops the frame; the client is
// too slow to be worth blocking a round for.
func (c *wsConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	default:
		return ErrBufferFull
	}
}

// Close implements Conn. Safe to call multiple times.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// ErrBufferFull is returned when a session's outbound buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError reports a dropped outbound frame.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
