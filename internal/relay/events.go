package relay

import "time"

// Event types carried on the wire.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "message"
)

// Event is the outbound notification fanned out to room members.
// Field names are the wire contract; "message" is present only for
// type == "message".
type Event struct {
	Type    string  `json:"type"`
	Room    string  `json:"room"`
	User    string  `json:"user"`
	Message string  `json:"message,omitempty"`
	TS      float64 `json:"ts"`
}

func JoinEvent(room, user string) Event {
	return Event{Type: EventJoin, Room: room, User: user, TS: nowSeconds()}
}

func LeaveEvent(room, user string) Event {
	return Event{Type: EventLeave, Room: room, User: user, TS: nowSeconds()}
}

func MessageEvent(room, user, text string) Event {
	return Event{Type: EventMessage, Room: room, User: user, Message: text, TS: nowSeconds()}
}

// nowSeconds is a fractional-seconds send-time timestamp.
func nowSeconds() float64 {
	return float64(time.Now().UnixMicro()) / 1e6
}

// Conn is the transport capability the relay core needs from a live
// client session. Implementations must be safe for concurrent use:
// broadcasts and the owning reader goroutine may touch a conn at once.
type Conn interface {
	SendEvent(Event) error
	Close(code int, reason string)
}
