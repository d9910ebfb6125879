package signaling

import (
	"sort"
	"sync"

	"github.com/mossy-p/callroom/internal/models"
)

// Registry tracks live connections and the rooms they belong to. It is the
// only authority on which identities are valid routing targets.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*Connection
	rooms       map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*Connection),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Register issues a new identity and makes it routable.
func (r *Registry) Register(sendBuffer int) *Connection {
	conn := newConnection(sendBuffer)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
	return conn
}

// Unregister removes the identity from every room, closes its outbound queue
// and returns the rooms it was removed from. Unknown identities are ignored.
func (r *Registry) Unregister(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	conn.close()
	return r.leaveAllLocked(id)
}

func (r *Registry) IsLive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Join adds id to roomID, creating the room on first use. It reports whether
// membership changed; joining twice, or joining with a dead identity, is a
// no-op.
func (r *Registry) Join(id, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return false
	}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, ok := members[id]; ok {
		return false
	}
	members[id] = struct{}{}

	joined, ok := r.memberships[id]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[id] = joined
	}
	joined[roomID] = struct{}{}
	return true
}

// Leave removes id from roomID and reports whether it was a member.
func (r *Registry) Leave(id, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(id, roomID)
}

// LeaveAll removes id from every room and returns the rooms it left.
func (r *Registry) LeaveAll(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveAllLocked(id)
}

func (r *Registry) leaveLocked(id, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if joined, ok := r.memberships[id]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, id)
		}
	}
	return true
}

func (r *Registry) leaveAllLocked(id string) []string {
	joined := r.memberships[id]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	sort.Strings(left)
	for _, roomID := range left {
		r.leaveLocked(id, roomID)
	}
	return left
}

// Members returns the sorted identities currently in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the sorted rooms id belongs to.
func (r *Registry) RoomsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.memberships[id]))
	for roomID := range r.memberships[id] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Rooms lists every non-empty room.
func (r *Registry) Rooms() []models.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RoomSummary, 0, len(r.rooms))
	for roomID, members := range r.rooms {
		out = append(out, models.RoomSummary{ID: roomID, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// withMembers calls fn for every live member of roomID except the excluded
// identity, holding the read lock so no member can be closed concurrently.
func (r *Registry) withMembers(roomID, exclude string, fn func(*Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.rooms[roomID] {
		if id == exclude {
			continue
		}
		if conn, ok := r.conns[id]; ok {
			fn(conn)
		}
	}
}

// withConnection calls fn with the live connection for id, if any.
func (r *Registry) withConnection(id string, fn func(*Connection)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	fn(conn)
	return true
}
