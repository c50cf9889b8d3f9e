package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
)

const (
	snakesGoal         = 100
	snakesAnimation    = 3 * time.Second
	tagSnakesAdvance   = "snakes.advance"
)

var snakeMap = map[int]int{
	99: 21, 95: 75, 87: 24, 62: 19,
	54: 34, 49: 11, 46: 25, 17: 7,
}

var ladderMap = map[int]int{
	4: 14, 9: 31, 20: 38, 28: 84,
	40: 59, 51: 67, 63: 81, 71: 91,
}

type snakesPlayer struct {
	ID   uuid.UUID `json:"id"`
	Seat int       `json:"seat"`
	Cell int       `json:"cell"` // 0 = before the board
}

type snakesState struct {
	Players   []snakesPlayer `json:"players"`
	Turn      int            `json:"turn"`
	Seed      uint64         `json:"seed"`
	Rolls     int            `json:"rolls"`
	Animating bool           `json:"animating"` // post-roll window, rolls rejected
	Finished  bool           `json:"finished"`
	WinnerID  *uuid.UUID     `json:"winner_id,omitempty"`
}

// SnakesEngine is the authoritative Snakes & Ladders ruleset.
type SnakesEngine struct {
	state snakesState
	roll  func() int
}

func NewSnakesEngine(roomID uuid.UUID, players []Player) *SnakesEngine {
	seed := Seed(roomID)
	ps := make([]snakesPlayer, len(players))
	for i, p := range players {
		ps[i] = snakesPlayer{ID: p.ID, Seat: p.Seat}
	}
	return &SnakesEngine{
		state: snakesState{Players: ps, Seed: seed},
		roll:  newDice(seed),
	}
}

func (e *SnakesEngine) Init() (*Result, error) {
	return &Result{Events: []Event{e.turnChanged()}}, nil
}

func (e *SnakesEngine) Apply(actorID uuid.UUID, action Action) (*Result, error) {
	if action.Kind != ActionRollDice {
		return nil, domain.ErrValidation("unsupported action for snakes and ladders")
	}
	if e.state.Finished {
		return nil, domain.ErrWrongState("game is over")
	}
	if e.current().ID != actorID {
		return nil, domain.ErrNotYourTurn()
	}
	if e.state.Animating {
		return nil, domain.ErrWrongState("move is animating")
	}

	actor := e.current()
	value := e.roll()
	e.state.Rolls++

	from := actor.Cell
	landing := from + value
	if landing > snakesGoal {
		landing = from // overshoot stays in place
	}
	if mapped, ok := snakeMap[landing]; ok {
		landing = mapped
	} else if mapped, ok := ladderMap[landing]; ok {
		landing = mapped
	}
	actor.Cell = landing

	events := []Event{
		{
			Name: "diceRolled",
			Payload: map[string]interface{}{
				"playerId": actor.ID.String(),
				"value":    value,
			},
		},
		{
			Name: "pieceMoved",
			Payload: map[string]interface{}{
				"playerId":   actor.ID.String(),
				"from":       from,
				"to":         landing,
				"boardAfter": e.board(),
			},
		},
	}

	if landing == snakesGoal {
		e.state.Finished = true
		e.state.WinnerID = &actor.ID
		return &Result{Events: events}, nil
	}

	// Strict rotation after the client-side animation window.
	e.state.Animating = true
	return &Result{
		Events:   events,
		Delay:    snakesAnimation,
		DelayTag: tagSnakesAdvance,
	}, nil
}

func (e *SnakesEngine) Resolve(tag string) (*Result, error) {
	if tag != tagSnakesAdvance {
		return nil, fmt.Errorf("unknown delay tag: %s", tag)
	}
	if e.state.Finished || !e.state.Animating {
		return &Result{}, nil
	}
	e.state.Animating = false
	e.state.Turn = (e.state.Turn + 1) % len(e.state.Players)
	return &Result{Events: []Event{e.turnChanged()}}, nil
}

func (e *SnakesEngine) OnTimeout() (*Result, error) {
	return &Result{}, nil
}

func (e *SnakesEngine) Terminal() bool { return e.state.Finished }

func (e *SnakesEngine) Winner() (uuid.UUID, bool) {
	if e.state.WinnerID == nil {
		return uuid.Nil, false
	}
	return *e.state.WinnerID, true
}

func (e *SnakesEngine) Scores() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(e.state.Players))
	for _, p := range e.state.Players {
		out[p.ID] = p.Cell
	}
	return out
}

func (e *SnakesEngine) CurrentActor() uuid.UUID { return e.current().ID }

// State is the client view of the live game: every player's cell.
func (e *SnakesEngine) State() interface{} {
	return map[string]interface{}{
		"board": e.board(),
	}
}

func (e *SnakesEngine) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.state)
}

func (e *SnakesEngine) Restore(raw json.RawMessage) error {
	if err := json.Unmarshal(raw, &e.state); err != nil {
		return err
	}
	// Replay the consumed draws so the restored stream continues exactly
	// where the live engine left off.
	e.roll = newDice(e.state.Seed)
	for i := 0; i < e.state.Rolls; i++ {
		e.roll()
	}
	return nil
}

func (e *SnakesEngine) current() *snakesPlayer {
	return &e.state.Players[e.state.Turn]
}

func (e *SnakesEngine) board() []map[string]interface{} {
	out := make([]map[string]interface{}, len(e.state.Players))
	for i, p := range e.state.Players {
		out[i] = map[string]interface{}{
			"playerId": p.ID.String(),
			"cell":     p.Cell,
		}
	}
	return out
}

func (e *SnakesEngine) turnChanged() Event {
	return Event{
		Name:    "turnChanged",
		Payload: map[string]interface{}{"currentPlayerId": e.current().ID.String()},
	}
}
