package socket

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyBound is returned when a connection that already carries a user
// identity attempts to bind a different one.
var ErrAlreadyBound = errors.New("connection already bound to another user")

var errUnknownConn = errors.New("unknown connection")

type entry struct {
	client *Client
	userID string
	rooms  map[string]struct{}
}

// Registry tracks live connections and their membership in delivery
// groups: one user group at most (multi-device per user), any number of
// room groups. Groups with zero members do not exist; member lookups
// return snapshots so fan-out never iterates a live map.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry             // conn_id -> entry
	byUser map[string]map[string]*Client // user -> conn_id -> client
	byRoom map[string]map[string]*Client // room -> conn_id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*entry),
		byUser: make(map[string]map[string]*Client),
		byRoom: make(map[string]map[string]*Client),
	}
}

// Register adds an unauthenticated connection with no group memberships.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ConnID] = &entry{client: c, rooms: make(map[string]struct{})}
}

// BindUser joins the connection to the user group. Binding the identical
// user again is a no-op; a different user is rejected.
func (r *Registry) BindUser(connID, userID string) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return errUnknownConn
	}
	if e.userID == userID {
		return nil
	}
	if e.userID != "" {
		return ErrAlreadyBound
	}
	e.userID = userID

	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[userID] = m
	}
	m[connID] = e.client
	return nil
}

// UserOf returns the bound user id, empty while unauthenticated.
func (r *Registry) UserOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[connID]; ok {
		return e.userID
	}
	return ""
}

// JoinRoom is idempotent; duplicate joins from network retries are no-ops.
func (r *Registry) JoinRoom(connID, roomID string) {
	if roomID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	e.rooms[roomID] = struct{}{}
	m := r.byRoom[roomID]
	if m == nil {
		m = make(map[string]*Client)
		r.byRoom[roomID] = m
	}
	m[connID] = e.client
}

// LeaveRoom is idempotent; leaving a room not joined is a no-op.
func (r *Registry) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(e.rooms, roomID)
	if m := r.byRoom[roomID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byRoom, roomID)
		}
	}
}

// Unregister removes the connection from every group it belongs to and
// discards it, returning the client for transport teardown. In-flight
// fan-out over a snapshot of a group keeps working.
func (r *Registry) Unregister(connID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	if e.userID != "" {
		if m := r.byUser[e.userID]; m != nil {
			delete(m, connID)
			if len(m) == 0 {
				delete(r.byUser, e.userID)
			}
		}
	}
	for roomID := range e.rooms {
		if m := r.byRoom[roomID]; m != nil {
			delete(m, connID)
			if len(m) == 0 {
				delete(r.byRoom, roomID)
			}
		}
	}
	return e.client
}

// UserConnCount reports how many connections the user still has; used to
// decide when presence flips offline.
func (r *Registry) UserConnCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// MembersOfUser returns a snapshot of the user group, empty for unknown
// users.
func (r *Registry) MembersOfUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

// MembersOfRoom returns a snapshot of the room group, empty for unknown
// rooms.
func (r *Registry) MembersOfRoom(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byRoom[roomID])
}

// RoomPeers returns the room members excluding one connection; used for
// typing signals which never echo back to the sender.
func (r *Registry) RoomPeers(roomID, exceptConnID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byRoom[roomID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for id, c := range m {
		if id == exceptConnID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.client)
	}
	return out
}

func snapshot(m map[string]*Client) []*Client {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
