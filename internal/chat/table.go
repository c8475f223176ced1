// Package chat implements the chat relay core: connection lifecycle,
// admission control, rate limiting, and history/broadcast routing.
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/nvoronin/gatechat/internal/domain"
)

// ErrDuplicateID is returned when a connection id is already registered.
// The transport guarantees unique ids, so hitting this indicates a bug;
// the offending connection is torn down, the process keeps running.
var ErrDuplicateID = errors.New("chat: duplicate connection id")

// Conn is the outbound half of a session's transport. Send must be safe
// for concurrent use and must not block indefinitely.
type Conn interface {
	Send(v any) error
}

type session struct {
	domain.Session
	addr string
	conn Conn
}

// ConnectionTable is the registry of live sessions, keyed by connection
// id. It is the exclusive owner of Session records; all reads return
// copies so callers never observe torn state.
type ConnectionTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewConnectionTable creates an empty connection table.
func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{sessions: make(map[string]*session)}
}

// Create registers a new unverified session for the given connection.
func (t *ConnectionTable) Create(id, addr string, conn Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[id]; exists {
		return ErrDuplicateID
	}
	t.sessions[id] = &session{
		Session: domain.Session{ID: id, ConnectedAt: time.Now()},
		addr:    addr,
		conn:    conn,
	}
	return nil
}

// Get returns a copy of the session with the given id.
func (t *ConnectionTable) Get(id string) (domain.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return s.Session, true
}

// Delete removes the session and reports whether it was present. At most
// one caller observes true per id, which makes disconnect idempotent.
func (t *ConnectionTable) Delete(id string) (domain.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	delete(t.sessions, id)
	return s.Session, true
}

// Len returns the number of live sessions, verified or not.
func (t *ConnectionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Origin returns the origin address recorded at connect time.
func (t *ConnectionTable) Origin(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return "", false
	}
	return s.addr, true
}

// Conn returns the transport for the given session.
func (t *ConnectionTable) Conn(id string) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

// MarkVerified flips the session into the verified state, recording the
// accepted code and allocated display name in the same critical section
// so no reader ever observes a verified session without a name.
// Verification is monotonic: once set it stays set until the session is
// deleted.
func (t *ConnectionTable) MarkVerified(id, code, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.Verified = true
	s.Code = code
	s.Name = name
	s.Room = domain.DefaultRoom
	return true
}

// SetName updates the session's display name.
func (t *ConnectionTable) SetName(id, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.Name = name
	return true
}

// SetRoom moves the session to a new room and returns the previous one.
func (t *ConnectionTable) SetRoom(id, room string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return "", false
	}
	prev := s.Room
	s.Room = room
	return prev, true
}

// ListVerified returns a snapshot of all verified sessions. Unverified
// sessions never appear here.
func (t *ConnectionTable) ListVerified() []domain.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		if s.Verified {
			out = append(out, s.Session)
		}
	}
	return out
}

// RoomSessions returns a snapshot of the verified sessions in a room.
func (t *ConnectionTable) RoomSessions(room string) []domain.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Session
	for _, s := range t.sessions {
		if s.Verified && s.Room == room {
			out = append(out, s.Session)
		}
	}
	return out
}

// RoomConns returns the transports of verified sessions in a room,
// skipping the excluded id. An empty room selects all verified sessions.
// The slice is a snapshot; sends happen outside the table lock.
func (t *ConnectionTable) RoomConns(room, exclude string) []Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Conn
	for _, s := range t.sessions {
		if !s.Verified || s.ID == exclude {
			continue
		}
		if room != "" && s.Room != room {
			continue
		}
		out = append(out, s.conn)
	}
	return out
}

// RoomEmpty reports whether no verified session remains in the room.
func (t *ConnectionTable) RoomEmpty(room string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		if s.Verified && s.Room == room {
			return false
		}
	}
	return true
}
