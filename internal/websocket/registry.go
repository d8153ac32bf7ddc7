package websocket

import (
	"sync"

	"readingroom/pkg/interfaces"
)

// Registry tracks live connections and the session rooms they belong to
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic.
// Who may join a room is decided by the hub, the registry only routes frames.
type Registry struct {
	mu          sync.RWMutex                                // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast fan-out
	connections map[string]interfaces.Connection            // connID -> Connection for O(1) direct sends
	rooms       map[string]map[string]interfaces.Connection // room -> connID -> Connection
	memberOf    map[string]map[string]bool                  // connID -> rooms, for disconnect cleanup
}

// NewRegistry creates a new connection registry
// FUNCTIONAL DISCOVERY: Initialize all maps to prevent nil pointer access during concurrent operations
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]interfaces.Connection),
		memberOf:    make(map[string]map[string]bool),
	}
}

// Register adds a connection for direct addressing
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a connection from the registry and from every room it joined.
// Idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connID)
	for room := range r.memberOf[connID] {
		r.removeFromRoomLocked(room, connID)
	}
	delete(r.memberOf, connID)
}

// Get returns the connection registered under connID
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// JoinRoom subscribes a registered connection to room
func (r *Registry) JoinRoom(room, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]interfaces.Connection)
	}
	r.rooms[room][connID] = conn
	if r.memberOf[connID] == nil {
		r.memberOf[connID] = make(map[string]bool)
	}
	r.memberOf[connID][room] = true
	return nil
}

// LeaveRoom unsubscribes connID from room. Idempotent.
func (r *Registry) LeaveRoom(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromRoomLocked(room, connID)
	if rooms := r.memberOf[connID]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberOf, connID)
		}
	}
}

// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
func (r *Registry) removeFromRoomLocked(room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// CloseRoom drops every subscription to room without closing the connections
func (r *Registry) CloseRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID := range r.rooms[room] {
		if rooms := r.memberOf[connID]; rooms != nil {
			delete(rooms, room)
			if len(rooms) == 0 {
				delete(r.memberOf, connID)
			}
		}
	}
	delete(r.rooms, room)
}

// Broadcast queues v on every member of room and returns how many accepted it
// FUNCTIONAL DISCOVERY: Delivery is best-effort per member; one full buffer does not
// stop the fan-out to the rest of the room
func (r *Registry) Broadcast(room string, v interface{}) int {
	r.mu.RLock()
	members := make([]interfaces.Connection, 0, len(r.rooms[room]))
	for _, conn := range r.rooms[room] {
		members = append(members, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range members {
		if err := conn.WriteJSON(v); err == nil {
			delivered++
		}
	}
	return delivered
}

// Send queues v on a single connection
func (r *Registry) Send(connID string, v interface{}) error {
	conn, ok := r.Get(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	return conn.WriteJSON(v)
}

// RoomSize returns the number of subscribers in room
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// InRoom reports whether connID is subscribed to room
func (r *Registry) InRoom(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// CloseAll closes every registered connection. Each read loop then unregisters
// its own connection, so the registry drains itself.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}
