package relay

import (
	"sort"
	"sync"
)

// roomState is the composite per-room value: member set plus the
// password/owner fixed at creation. It exists if and only if the room
// key is present in the registry, so membership, password and owner
// always appear and disappear together.
type roomState struct {
	members  map[Conn]struct{}
	password string
	owner    string
}

type session struct {
	username string
	room     string
}

// Registry is the source of truth mapping rooms to member connections
// and connections back to their room and username. One mutex guards the
// whole structure: admission, removal and the gatekeeper's password
// check-and-set all need to observe membership, password and owner as a
// unit.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*roomState
	conns map[Conn]session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		conns: make(map[Conn]session),
	}
}

// Admit adds c to the room's member set and records its reverse
// mapping. It reports false when the room has no seeded entry — the
// room was torn down between the caller's Authorize and this call —
// rather than resurrect a room with no password or owner.
func (r *Registry) Admit(room string, c Conn, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.rooms[room]
	if st == nil {
		return false
	}
	st.members[c] = struct{}{}
	r.conns[c] = session{username: username, room: room}
	return true
}

// Evicted pairs a force-closed connection with the username it was
// admitted under, which is gone from the registry by the time the
// caller sees it.
type Evicted struct {
	Conn     Conn
	Username string
}

// Remove takes c out of the room and clears its reverse mapping.
//
// If the leaving username is the room's owner and other members remain,
// the room is torn down on the spot: password and owner are cleared,
// the remaining members' reverse mappings are removed, and they are
// returned as evicted so the caller can force-close them. Otherwise the
// post-removal membership snapshot is returned as remaining for the
// leave broadcast. A room emptied either way is deleted outright.
func (r *Registry) Remove(room string, c Conn) (username string, wasOwner bool, evicted []Evicted, remaining []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.conns[c]
	if !ok {
		return "", false, nil, nil
	}
	username = sess.username
	delete(r.conns, c)

	st := r.rooms[room]
	if st == nil {
		return username, false, nil, nil
	}
	delete(st.members, c)

	wasOwner = username == st.owner
	if wasOwner && len(st.members) > 0 {
		evicted = make([]Evicted, 0, len(st.members))
		for m := range st.members {
			evicted = append(evicted, Evicted{Conn: m, Username: r.conns[m].username})
			delete(r.conns, m)
		}
		delete(r.rooms, room)
		return username, true, evicted, nil
	}

	if len(st.members) == 0 {
		delete(r.rooms, room)
		return username, wasOwner, nil, nil
	}

	remaining = make([]Conn, 0, len(st.members))
	for m := range st.members {
		remaining = append(remaining, m)
	}
	return username, wasOwner, nil, remaining
}

// Snapshot returns a point-in-time copy of the room's membership, so
// delivery never happens while the lock is held.
func (r *Registry) Snapshot(room string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.rooms[room]
	if st == nil {
		return nil
	}
	conns := make([]Conn, 0, len(st.members))
	for c := range st.members {
		conns = append(conns, c)
	}
	return conns
}

// PruneDead drops connections found unreachable during a delivery
// pass. A room emptied by pruning is torn down like any other empty
// room; transport failure is not a policy event, so no eviction
// semantics apply.
func (r *Registry) PruneDead(room string, dead []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.rooms[room]
	if st == nil {
		return
	}
	for _, c := range dead {
		if _, ok := st.members[c]; ok {
			delete(st.members, c)
			delete(r.conns, c)
		}
	}
	if len(st.members) == 0 {
		delete(r.rooms, room)
	}
}

// RoomInfo is the introspection view of one live room.
type RoomInfo struct {
	Room    string `json:"room"`
	Owner   string `json:"owner"`
	Members int    `json:"members"`
}

// Rooms lists live rooms sorted by key.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for name, st := range r.rooms {
		out = append(out, RoomInfo{Room: name, Owner: st.owner, Members: len(st.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Room returns the introspection view of a single room.
func (r *Registry) Room(name string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.rooms[name]
	if st == nil {
		return RoomInfo{}, false
	}
	return RoomInfo{Room: name, Owner: st.owner, Members: len(st.members)}, true
}
