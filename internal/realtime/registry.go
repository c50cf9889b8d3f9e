package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks which users are connected on which sockets and which rooms
// they occupy. One RWMutex guards the four maps; every operation is O(1) in
// the number of sockets or rooms touched.
type Registry struct {
	mu        sync.RWMutex
	connUser  map[string]uuid.UUID            // connection -> user
	userConns map[uuid.UUID]map[string]bool   // user -> connections
	userRooms map[uuid.UUID]map[uuid.UUID]bool // user -> rooms
	roomUsers map[uuid.UUID]map[uuid.UUID]bool // room -> users
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connUser:  make(map[string]uuid.UUID),
		userConns: make(map[uuid.UUID]map[string]bool),
		userRooms: make(map[uuid.UUID]map[uuid.UUID]bool),
		roomUsers: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

// Attach binds a connection to a user.
func (r *Registry) Attach(connID string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connUser[connID] = userID
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[string]bool)
	}
	r.userConns[userID][connID] = true
}

// Detach unbinds a connection. When it was the user's last socket, the user
// leaves every room; the rooms they left are returned so callers can notify.
func (r *Registry) Detach(connID string) (userID uuid.UUID, wasLast bool, leftRooms []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.connUser[connID]
	if !ok {
		return uuid.Nil, false, nil
	}
	delete(r.connUser, connID)

	conns := r.userConns[userID]
	delete(conns, connID)
	if len(conns) > 0 {
		return userID, false, nil
	}
	delete(r.userConns, userID)

	for roomID := range r.userRooms[userID] {
		leftRooms = append(leftRooms, roomID)
		delete(r.roomUsers[roomID], userID)
		if len(r.roomUsers[roomID]) == 0 {
			delete(r.roomUsers, roomID)
		}
	}
	delete(r.userRooms, userID)

	return userID, true, leftRooms
}

// UserOfConn resolves the user bound to a connection.
func (r *Registry) UserOfConn(connID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.connUser[connID]
	return userID, ok
}

// ConnsOfUser returns every socket of a user.
func (r *Registry) ConnsOfUser(userID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.userConns[userID]))
	for connID := range r.userConns[userID] {
		out = append(out, connID)
	}
	return out
}

// IsOnline reports whether the user has at least one socket attached.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

// JoinRoom adds the user to a room audience.
func (r *Registry) JoinRoom(userID, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userRooms[userID] == nil {
		r.userRooms[userID] = make(map[uuid.UUID]bool)
	}
	r.userRooms[userID][roomID] = true
	if r.roomUsers[roomID] == nil {
		r.roomUsers[roomID] = make(map[uuid.UUID]bool)
	}
	r.roomUsers[roomID][userID] = true
}

// LeaveRoom removes the user from a room audience.
func (r *Registry) LeaveRoom(userID, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.userRooms[userID], roomID)
	if len(r.userRooms[userID]) == 0 {
		delete(r.userRooms, userID)
	}
	delete(r.roomUsers[roomID], userID)
	if len(r.roomUsers[roomID]) == 0 {
		delete(r.roomUsers, roomID)
	}
}

// LeaveAllRooms removes the user from every room, returning the rooms left.
func (r *Registry) LeaveAllRooms(userID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []uuid.UUID
	for roomID := range r.userRooms[userID] {
		left = append(left, roomID)
		delete(r.roomUsers[roomID], userID)
		if len(r.roomUsers[roomID]) == 0 {
			delete(r.roomUsers, roomID)
		}
	}
	delete(r.userRooms, userID)
	return left
}

// UsersInRoom returns the room audience.
func (r *Registry) UsersInRoom(roomID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.roomUsers[roomID]))
	for userID := range r.roomUsers[roomID] {
		out = append(out, userID)
	}
	return out
}

// RoomsOfUser returns the rooms the user currently occupies.
func (r *Registry) RoomsOfUser(userID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.userRooms[userID]))
	for roomID := range r.userRooms[userID] {
		out = append(out, roomID)
	}
	return out
}

// StartCleanup sweeps stale reverse entries on a fixed schedule until the
// context is cancelled.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup drops room memberships of users with no live socket. Normally a
// no-op; it repairs the maps if a detach path was missed.
func (r *Registry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, rooms := range r.userRooms {
		if len(r.userConns[userID]) > 0 {
			continue
		}
		for roomID := range rooms {
			delete(r.roomUsers[roomID], userID)
			if len(r.roomUsers[roomID]) == 0 {
				delete(r.roomUsers, roomID)
			}
		}
		delete(r.userRooms, userID)
	}
}
