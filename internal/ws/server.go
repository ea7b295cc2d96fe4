package ws

import (
	"net/http"
	"time"

	"chatrelaygo/internal/audit"
	"chatrelaygo/internal/ratelimit"
	"chatrelaygo/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	// CloseRoomClosedByOwner is the application close code peers receive
	// when the room owner departs. Clients depend on the exact value.
	CloseRoomClosedByOwner = 4001

	roomClosedReason = "room closed by owner"
)

type WsServer struct {
	reg       *relay.Registry
	gate      *relay.Gatekeeper
	bcast     *relay.Broadcaster
	limiter   *ratelimit.Limiter // nil disables join rate limiting
	recorder  *audit.Recorder    // nil disables session audit
	upgrader  websocket.Upgrader
	readLimit int64
}

func NewWsServer(reg *relay.Registry, limiter *ratelimit.Limiter, recorder *audit.Recorder, readLimit int64) *WsServer {
	return &WsServer{
		reg:      reg,
		gate:     relay.NewGatekeeper(reg),
		bcast:    relay.NewBroadcaster(reg),
		limiter:  limiter,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // dev-only
		},
		readLimit: readLimit,
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle upgrades GET /ws/chat/:room and drives the connection through
// its lifecycle: password check, admission, relay loop, disconnect.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	room := ginCtx.Param("room")
	username := ginCtx.DefaultQuery("username", "anonymous")
	password := ginCtx.Query("password")
	if room == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ginCtx.Request.Context(), ginCtx.ClientIP())
		if err != nil {
			zap.L().Warn("ws.ratelimit", zap.Error(err)) // fail open on limiter errors
		} else if !allowed {
			ginCtx.JSON(http.StatusTooManyRequests, gin.H{"error": "too many join attempts"})
			return
		}
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.readLimit)
	conn := newClientConn(rawConn)

	// Pending -> Closed on policy refusal: coded close, no state touched.
	if err := s.gate.Authorize(room, password, username); err != nil {
		zap.L().Info("ws.join_refused",
			zap.String("room", room), zap.String("username", username), zap.Error(err))
		conn.Close(websocket.ClosePolicyViolation, err.Error())
		return
	}

	// Authorized -> Active. Admission can still lose to a teardown that
	// lands between the password check and here; the room no longer
	// exists, so the attempt is refused like any other policy outcome.
	if !s.reg.Admit(room, conn, username) {
		zap.L().Info("ws.join_refused",
			zap.String("room", room), zap.String("username", username), zap.String("reason", "room closed"))
		conn.Close(websocket.ClosePolicyViolation, "room closed")
		return
	}
	s.recorder.Record(audit.Entry{ConnID: conn.id, Room: room, Username: username, Action: audit.ActionJoin})
	zap.L().Info("ws.joined",
		zap.String("conn_id", conn.id), zap.String("room", room), zap.String("username", username))
	s.bcast.Broadcast(room, relay.JoinEvent(room, username))

	go s.reader(room, username, conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// reader relays each inbound text payload as one message event. The
// sender blocks on each receive until the broadcast attempt completes,
// which preserves per-sender relay order.
func (s *WsServer) reader(room, username string, conn *clientConn) {
	defer s.disconnect(room, conn)

	for {
		text, err := conn.receiveText()
		if err != nil {
			return // client closed or errored
		}
		s.bcast.Broadcast(room, relay.MessageEvent(room, username, text))
	}
}

// disconnect is the Active -> Closed transition. An ordinary departure
// broadcasts a leave event to the remaining members. When the owner
// departs, the owner's leave event is delivered to the already-removed
// peers first, then each peer is force-closed with the reserved code.
func (s *WsServer) disconnect(room string, conn *clientConn) {
	username, wasOwner, evicted, remaining := s.reg.Remove(room, conn)
	conn.Close(websocket.CloseNormalClosure, "")
	if username == "" {
		return // never admitted
	}
	s.recorder.Record(audit.Entry{ConnID: conn.id, Room: room, Username: username, Action: audit.ActionLeave})

	leave := relay.LeaveEvent(room, username)
	if wasOwner && len(evicted) > 0 {
		zap.L().Info("ws.room_closed",
			zap.String("room", room), zap.String("owner", username), zap.Int("evicted", len(evicted)))
		for _, peer := range evicted {
			_ = peer.Conn.SendEvent(leave)
			peer.Conn.Close(CloseRoomClosedByOwner, roomClosedReason)
			if cc, ok := peer.Conn.(*clientConn); ok {
				s.recorder.Record(audit.Entry{ConnID: cc.id, Room: room, Username: peer.Username, Action: audit.ActionEvict})
			}
		}
		return
	}

	zap.L().Info("ws.left",
		zap.String("conn_id", conn.id), zap.String("room", room), zap.String("username", username))
	s.bcast.BroadcastTo(room, remaining, leave)
}
