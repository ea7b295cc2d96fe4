package relay

import "go.uber.org/zap"

// Broadcaster fans an Event out to a room's current members. Delivery
// runs against a point-in-time snapshot so no send ever happens under
// the registry lock, and one dead connection never blocks delivery to
// the rest.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast delivers ev to a fresh snapshot of the room's membership.
// The sender of a message is a regular member of that snapshot and
// receives its own event back.
func (b *Broadcaster) Broadcast(room string, ev Event) {
	b.BroadcastTo(room, b.reg.Snapshot(room), ev)
}

// BroadcastTo delivers ev to an already-taken membership snapshot of
// room. Members whose send fails are pruned from the registry after
// the delivery pass.
func (b *Broadcaster) BroadcastTo(room string, conns []Conn, ev Event) {
	var dead []Conn
	for _, c := range conns {
		if err := c.SendEvent(ev); err != nil {
			zap.L().Debug("relay.send_failed",
				zap.String("room", room), zap.String("type", ev.Type), zap.Error(err))
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		b.reg.PruneDead(room, dead)
	}
}
