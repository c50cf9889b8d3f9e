package game

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
)

// Player is a seated participant as the engines see it.
type Player struct {
	ID    uuid.UUID    `json:"id"`
	Seat  int          `json:"seat"`
	Color domain.Color `json:"color"`
}

// ActionKind enumerates the inbound game actions.
type ActionKind string

const (
	ActionRollDice   ActionKind = "rollDice"
	ActionMovePiece  ActionKind = "movePiece"
	ActionSelectCard ActionKind = "selectCard"
)

// Action is a player input dispatched by the room worker.
type Action struct {
	Kind     ActionKind
	PieceID  int
	Position int
}

// Event is an outbound game event. Payload is already wire-shaped.
type Event struct {
	Name    string
	Payload interface{}
}

// Result tells the room worker what to broadcast and what to schedule.
// Delay > 0 asks for Resolve(DelayTag) to be posted to the room inbox after
// the delay. StartClock > 0 (re)arms the turn clock; StopClock cancels it.
type Result struct {
	Events     []Event
	Delay      time.Duration
	DelayTag   string
	StartClock time.Duration
	StopClock  bool
}

// Engine is the capability shared by all four game rulesets. Implementations
// are not safe for concurrent use; the room worker serialises access.
type Engine interface {
	// Init deals the initial state and returns the opening events.
	Init() (*Result, error)

	// Apply validates and applies a player action.
	Apply(actorID uuid.UUID, action Action) (*Result, error)

	// Resolve completes a scheduled step (display delay, animation window).
	Resolve(tag string) (*Result, error)

	// OnTimeout handles turn clock or global clock expiry.
	OnTimeout() (*Result, error)

	Terminal() bool
	Winner() (uuid.UUID, bool)
	Scores() map[uuid.UUID]int
	CurrentActor() uuid.UUID

	// State is the wire-shaped client view of the live board, used for the
	// game start payload and for reconnect resync.
	State() interface{}

	Snapshot() (json.RawMessage, error)
	Restore(json.RawMessage) error
}

// Config carries the tunable rule parameters.
type Config struct {
	MemoryPairs     int
	MemoryLifelines int
	MemoryTurnTimer time.Duration
	FastTimer2P     time.Duration
	FastTimerMulti  time.Duration
}

// New builds the engine for a room. The room id seeds all deterministic
// randomness so state is recoverable from the persisted row.
func New(gameType domain.GameType, roomID uuid.UUID, players []Player, cfg Config) (Engine, error) {
	switch gameType {
	case domain.GameMemory:
		return NewMemoryEngine(roomID, players, cfg), nil
	case domain.GameClassicLudo:
		return NewLudoEngine(roomID, players, false, cfg), nil
	case domain.GameFastLudo:
		return NewLudoEngine(roomID, players, true, cfg), nil
	case domain.GameSnakesLadders:
		return NewSnakesEngine(roomID, players), nil
	default:
		return nil, fmt.Errorf("unknown game type: %s", gameType)
	}
}

// Seed derives the deterministic engine seed from the room id (FNV-64a).
func Seed(roomID uuid.UUID) uint64 {
	h := fnv.New64a()
	h.Write([]byte(roomID.String()))
	return h.Sum64()
}

// newDice returns a uniform 1..6 roller from the given seed.
func newDice(seed uint64) func() int {
	rng := rand.New(rand.NewSource(int64(seed)))
	return func() int { return rng.Intn(6) + 1 }
}

// shuffle runs the deterministic three-pass Fisher–Yates used by the
// Memory deal. Same seed, same arrangement.
func shuffle(n int, seed uint64) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	for pass := 0; pass < 3; pass++ {
		for i := n - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
