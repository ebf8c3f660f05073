package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagerhq/concierge/protocol"
)

func startTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	reg := NewRegistry(&fakeHandler{})
	srv := NewServer(reg)

	e := echo.New()
	srv.Routes(e)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return ts, reg
}

func dial(t *testing.T, ts *httptest.Server, userID, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	header := http.Header{}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame protocol.Outbound
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	ts, _ := startTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	ts, reg := startTestServer(t)
	conn := dial(t, ts, "user-1", "")

	waitFor(t, func() bool { return reg.Len() == 1 })

	require.NoError(t, conn.WriteJSON(protocol.Inbound{Type: protocol.TypeChat, Message: "hello"}))
	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeChatResponse, frame.Type)
	assert.Equal(t, "ok: hello", frame.Response)
}

func TestWebSocketDuplicateSessionRejected(t *testing.T) {
	ts, reg := startTestServer(t)
	first := dial(t, ts, "user-1", "")
	waitFor(t, func() bool { return reg.Len() == 1 })

	second := dial(t, ts, "user-1", "")
	frame := readFrame(t, second)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, protocol.CodeDuplicateSession, frame.Code)

	// The first session keeps working.
	require.NoError(t, first.WriteJSON(protocol.Inbound{Type: protocol.TypePing}))
	frame = readFrame(t, first)
	assert.Equal(t, protocol.TypePong, frame.Type)
}

func TestWebSocketEvictReplacesSession(t *testing.T) {
	ts, reg := startTestServer(t)
	dial(t, ts, "user-1", "")
	waitFor(t, func() bool { return reg.Len() == 1 })
	firstID, _ := reg.SessionFor("user-1")

	second := dial(t, ts, "user-1", "?evict=true")
	waitFor(t, func() bool {
		id, ok := reg.SessionFor("user-1")
		return ok && id != firstID
	})

	require.NoError(t, second.WriteJSON(protocol.Inbound{Type: protocol.TypePing}))
	frame := readFrame(t, second)
	assert.Equal(t, protocol.TypePong, frame.Type)
}

func TestWebSocketBadFrame(t *testing.T) {
	ts, reg := startTestServer(t)
	conn := dial(t, ts, "user-1", "")
	waitFor(t, func() bool { return reg.Len() == 1 })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, protocol.CodeBadFrame, frame.Code)

	require.NoError(t, conn.WriteJSON(protocol.Inbound{Type: protocol.TypeChat}))
	frame = readFrame(t, conn)
	assert.Equal(t, protocol.CodeBadFrame, frame.Code)
}

func TestWebSocketDisconnectReleasesUser(t *testing.T) {
	ts, reg := startTestServer(t)
	conn := dial(t, ts, "user-1", "")
	waitFor(t, func() bool { return reg.Len() == 1 })

	conn.Close()
	waitFor(t, func() bool { return reg.Len() == 0 })

	// Reconnect succeeds once the old session is gone.
	again := dial(t, ts, "user-1", "")
	require.NoError(t, again.WriteJSON(protocol.Inbound{Type: protocol.TypePing}))
	frame := readFrame(t, again)
	assert.Equal(t, protocol.TypePong, frame.Type)
}
