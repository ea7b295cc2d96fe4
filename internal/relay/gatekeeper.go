package relay

import (
	"errors"
	"strings"
)

var (
	// ErrPasswordRequired rejects creation of a room with a blank password.
	ErrPasswordRequired = errors.New("room password required")
	// ErrPasswordMismatch rejects a join whose password differs from the
	// one fixed at room creation.
	ErrPasswordMismatch = errors.New("invalid room password")
)

// Gatekeeper decides whether a join request may proceed and seeds
// password/owner exactly once per room lifetime. It shares the
// registry's mutex so the check-and-set cannot race a concurrent
// first joiner.
type Gatekeeper struct {
	reg *Registry
}

func NewGatekeeper(reg *Registry) *Gatekeeper {
	return &Gatekeeper{reg: reg}
}

// Authorize runs the create-vs-join policy for (room, password, username).
//
// Teardown deletes a room's entry the moment its member set empties,
// so key absence is room absence: such a request is a creation request
// and records password and owner before any member is admitted. The
// caller is expected to Admit immediately on success. An existing room
// admits on exact password match only; refusal mutates nothing.
func (g *Gatekeeper) Authorize(room, password, username string) error {
	g.reg.mu.Lock()
	defer g.reg.mu.Unlock()

	st := g.reg.rooms[room]
	if st == nil {
		if strings.TrimSpace(password) == "" {
			return ErrPasswordRequired
		}
		g.reg.rooms[room] = &roomState{
			members:  make(map[Conn]struct{}),
			password: password,
			owner:    username,
		}
		return nil
	}

	if password != st.password {
		return ErrPasswordMismatch
	}
	return nil
}
