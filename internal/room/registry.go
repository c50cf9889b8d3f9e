package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
)

// Registry tracks the live room workers. Matchmaking hands committed rooms
// in via Create; the websocket handlers look workers up by room id.
type Registry struct {
	deps Deps

	mu      sync.RWMutex
	workers map[uuid.UUID]*Worker
}

// NewRegistry creates an empty room registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		workers: make(map[uuid.UUID]*Worker),
	}
}

// Create spins up the worker for a freshly matched (or recovered) room.
func (r *Registry) Create(room *domain.Room, participants []domain.Participant) (*Worker, error) {
	worker, err := newWorker(r.deps, room, participants, r.remove)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.workers[room.ID] = worker
	r.mu.Unlock()

	r.deps.Logger.Info("room registered",
		"roomId", room.ID, "gameType", room.GameType, "players", len(participants))
	return worker, nil
}

// Recover reloads non-terminal rooms from the database after a restart and
// spins their workers back up. PLAYING rooms resume from the persisted
// engine snapshot; WAITING rooms re-enter the auto-start window.
func (r *Registry) Recover(ctx context.Context) error {
	rooms, err := r.deps.Rooms.ListActive(ctx, r.deps.DB)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}

	recovered := 0
	for _, rm := range rooms {
		participants, err := r.deps.Rooms.ListParticipants(ctx, r.deps.DB, rm.ID)
		if err != nil {
			return fmt.Errorf("list participants for room %s: %w", rm.ID, err)
		}
		if _, err := r.Create(rm, participants); err != nil {
			r.deps.Logger.Error("room recovery failed", "roomId", rm.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		r.deps.Logger.Info("rooms recovered", "count", recovered)
	}
	return nil
}

// Get returns the live worker for a room, if any.
func (r *Registry) Get(roomID uuid.UUID) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[roomID]
	return w, ok
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Shutdown stops every worker. Used on server exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.workers {
		w.Stop()
		delete(r.workers, id)
	}
}

func (r *Registry) remove(roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, roomID)
}
