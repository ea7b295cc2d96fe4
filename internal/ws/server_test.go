package ws

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"chatrelaygo/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *relay.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := relay.NewRegistry()
	srv := NewWsServer(reg, nil, nil, 4096)

	engine := gin.New()
	engine.GET("/ws/chat/:room", srv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return ts, reg
}

func dial(t *testing.T, ts *httptest.Server, room, username, password string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat/" + room +
		"?username=" + url.QueryEscape(username) + "&password=" + url.QueryEscape(password)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) relay.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev relay.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readClose drains events until the peer closes, returning the close code.
func readClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev relay.Event
		err := conn.ReadJSON(&ev)
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close frame, got %v", err)
		return closeErr.Code, closeErr.Text
	}
}

func TestJoinRelayAndLeave(t *testing.T) {
	ts, reg := newTestServer(t)

	alice := dial(t, ts, "lobby", "alice", "s3cret")
	ev := readEvent(t, alice)
	assert.Equal(t, relay.Event{Type: "join", Room: "lobby", User: "alice", TS: ev.TS}, ev)
	assert.Positive(t, ev.TS)

	bob := dial(t, ts, "lobby", "bob", "s3cret")
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, conn)
		assert.Equal(t, "join", ev.Type)
		assert.Equal(t, "bob", ev.User)
	}

	// A message from bob reaches alice and echoes back to bob.
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("hello")))
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, conn)
		assert.Equal(t, "message", ev.Type)
		assert.Equal(t, "bob", ev.User)
		assert.Equal(t, "hello", ev.Message)
	}

	// Ordinary peer departure broadcasts a leave to the rest.
	require.NoError(t, bob.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	bob.Close()

	ev = readEvent(t, alice)
	assert.Equal(t, "leave", ev.Type)
	assert.Equal(t, "bob", ev.User)

	require.Eventually(t, func() bool {
		info, ok := reg.Room("lobby")
		return ok && info.Members == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJoinRefusedBlankPassword(t *testing.T) {
	ts, reg := newTestServer(t)

	conn := dial(t, ts, "lobby", "alice", "   ")
	code, _ := readClose(t, conn)
	assert.Equal(t, websocket.ClosePolicyViolation, code)

	_, ok := reg.Room("lobby")
	assert.False(t, ok, "refused creation leaves no room behind")
}

func TestJoinRefusedWrongPassword(t *testing.T) {
	ts, _ := newTestServer(t)

	alice := dial(t, ts, "lobby", "alice", "right")
	readEvent(t, alice) // alice's own join

	intruder := dial(t, ts, "lobby", "mallory", "wrong")
	code, reason := readClose(t, intruder)
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, relay.ErrPasswordMismatch.Error(), reason)
}

func TestOwnerDepartureEvictsPeers(t *testing.T) {
	ts, reg := newTestServer(t)

	owner := dial(t, ts, "den", "owner", "pw")
	readEvent(t, owner)

	peerA := dial(t, ts, "den", "a", "pw")
	readEvent(t, owner)
	readEvent(t, peerA)
	peerB := dial(t, ts, "den", "b", "pw")
	readEvent(t, owner)
	readEvent(t, peerA)
	readEvent(t, peerB)

	owner.Close()

	// Peers see the owner's leave, then the reserved eviction close.
	for _, peer := range []*websocket.Conn{peerA, peerB} {
		ev := readEvent(t, peer)
		assert.Equal(t, "leave", ev.Type)
		assert.Equal(t, "owner", ev.User)

		code, reason := readClose(t, peer)
		assert.Equal(t, CloseRoomClosedByOwner, code)
		assert.Equal(t, roomClosedReason, reason)
	}

	require.Eventually(t, func() bool {
		_, ok := reg.Room("den")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	// The key is reusable as a fresh room with a new password and owner.
	again := dial(t, ts, "den", "carol", "newpw")
	ev := readEvent(t, again)
	assert.Equal(t, "join", ev.Type)
	assert.Equal(t, "carol", ev.User)

	info, ok := reg.Room("den")
	require.True(t, ok)
	assert.Equal(t, "carol", info.Owner)
}

func TestUsernameDefaultsToAnonymous(t *testing.T) {
	ts, _ := newTestServer(t)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat/lobby?password=pw"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, "anonymous", ev.User)
}
