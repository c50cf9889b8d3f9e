package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
)

// memorySymbols is the emoji alphabet for the default 15-pair deck.
// The first P symbols are used for a P-pair board.
var memorySymbols = []string{
	"🍎", "🍌", "🍇", "🍓", "🍒", "🍍", "🥝", "🍉",
	"🍑", "🥥", "🍋", "🍐", "🥭", "🍈", "🫐",
}

const (
	memoryMatchPoints = 10
	memoryDisplay     = 600 * time.Millisecond

	tagMemoryResolve = "memory.resolve"
)

type memoryCard struct {
	Symbol  int  `json:"symbol"`
	Matched bool `json:"matched"`
}

type memoryPlayer struct {
	ID          uuid.UUID `json:"id"`
	Seat        int       `json:"seat"`
	Score       int       `json:"score"`
	Lifelines   int       `json:"lifelines"`
	Eliminated  bool      `json:"eliminated"`
	LastScoreAt int       `json:"last_score_at"` // move counter at last scoring match
}

type memoryState struct {
	Pairs    int            `json:"pairs"`
	Cards    []memoryCard   `json:"cards"`
	Revealed []int          `json:"revealed"` // face-up positions this turn, at most 2
	Players  []memoryPlayer `json:"players"`
	Turn     int            `json:"turn"`
	Matched  int            `json:"matched"` // pairs matched so far
	Moves    int            `json:"moves"`
	Resolving bool          `json:"resolving"` // second card down, waiting out the display delay
	Finished bool           `json:"finished"`
	WinnerID *uuid.UUID     `json:"winner_id,omitempty"`
}

// MemoryEngine is the authoritative ruleset for the card-matching game.
type MemoryEngine struct {
	state     memoryState
	turnTimer time.Duration
}

// NewMemoryEngine deals a 2×P board shuffled deterministically from the room id.
func NewMemoryEngine(roomID uuid.UUID, players []Player, cfg Config) *MemoryEngine {
	pairs := cfg.MemoryPairs
	if pairs != 11 && pairs != 15 {
		pairs = 15
	}
	lifelines := cfg.MemoryLifelines
	if lifelines <= 0 {
		lifelines = 3
	}
	turnTimer := cfg.MemoryTurnTimer
	if turnTimer <= 0 {
		turnTimer = 15 * time.Second
	}

	order := shuffle(pairs*2, Seed(roomID))
	cards := make([]memoryCard, pairs*2)
	for i, slot := range order {
		cards[slot] = memoryCard{Symbol: i % pairs}
	}

	ps := make([]memoryPlayer, len(players))
	for i, p := range players {
		ps[i] = memoryPlayer{ID: p.ID, Seat: p.Seat, Lifelines: lifelines}
	}

	return &MemoryEngine{
		state: memoryState{
			Pairs:   pairs,
			Cards:   cards,
			Players: ps,
		},
		turnTimer: turnTimer,
	}
}

func (e *MemoryEngine) Init() (*Result, error) {
	return &Result{
		Events: []Event{
			e.turnChanged(),
		},
		StartClock: e.turnTimer,
	}, nil
}

func (e *MemoryEngine) Apply(actorID uuid.UUID, action Action) (*Result, error) {
	if action.Kind != ActionSelectCard {
		return nil, domain.ErrValidation("unsupported action for memory")
	}
	if e.state.Finished {
		return nil, domain.ErrWrongState("game is over")
	}
	if e.current().ID != actorID {
		return nil, domain.ErrNotYourTurn()
	}
	if e.state.Resolving {
		return nil, domain.ErrWrongState("pair is resolving")
	}

	pos := action.Position
	if pos < 0 || pos >= len(e.state.Cards) {
		return nil, domain.ErrValidation("card position out of range")
	}
	if e.state.Cards[pos].Matched {
		return nil, domain.ErrValidation("card already matched")
	}
	for _, r := range e.state.Revealed {
		if r == pos {
			return nil, domain.ErrValidation("card already revealed")
		}
	}
	if len(e.state.Revealed) >= 2 {
		return nil, domain.ErrValidation("two cards already revealed")
	}

	e.state.Revealed = append(e.state.Revealed, pos)
	result := &Result{
		Events: []Event{{
			Name: "cardRevealed",
			Payload: map[string]interface{}{
				"position":   pos,
				"symbol":     memorySymbols[e.state.Cards[pos].Symbol],
				"byPlayerId": actorID.String(),
			},
		}},
	}

	// Second card: stop the clock, resolve after the display delay.
	if len(e.state.Revealed) == 2 {
		e.state.Resolving = true
		result.StopClock = true
		result.Delay = memoryDisplay
		result.DelayTag = tagMemoryResolve
	}

	return result, nil
}

func (e *MemoryEngine) Resolve(tag string) (*Result, error) {
	if tag != tagMemoryResolve {
		return nil, fmt.Errorf("unknown delay tag: %s", tag)
	}
	if !e.state.Resolving || len(e.state.Revealed) != 2 {
		return &Result{}, nil
	}

	a, b := e.state.Revealed[0], e.state.Revealed[1]
	actor := e.current()
	e.state.Revealed = nil
	e.state.Resolving = false
	e.state.Moves++

	if e.state.Cards[a].Symbol == e.state.Cards[b].Symbol {
		e.state.Cards[a].Matched = true
		e.state.Cards[b].Matched = true
		e.state.Matched++
		actor.Score += memoryMatchPoints
		actor.LastScoreAt = e.state.Moves

		result := &Result{
			Events: []Event{{
				Name: "cardsMatched",
				Payload: map[string]interface{}{
					"positions":  []int{a, b},
					"byPlayerId": actor.ID.String(),
					"scores":     e.scoreBoard(),
				},
			}},
		}

		if e.state.Matched == e.state.Pairs {
			e.finishByScore()
			return result, nil
		}

		// Match grants another turn.
		result.StartClock = e.turnTimer
		return result, nil
	}

	e.advanceTurn()
	return &Result{
		Events: []Event{
			{
				Name: "cardsMismatched",
				Payload: map[string]interface{}{
					"positions":    []int{a, b},
					"nextPlayerId": e.current().ID.String(),
				},
			},
			e.turnChanged(),
		},
		StartClock: e.turnTimer,
	}, nil
}

func (e *MemoryEngine) OnTimeout() (*Result, error) {
	if e.state.Finished {
		return &Result{}, nil
	}

	actor := e.current()
	flippedBack := append([]int{}, e.state.Revealed...)
	e.state.Revealed = nil
	e.state.Resolving = false
	e.state.Moves++
	actor.Lifelines--

	events := []Event{{
		Name: "lifelineLost",
		Payload: map[string]interface{}{
			"playerId":    actor.ID.String(),
			"remaining":   actor.Lifelines,
			"flippedBack": flippedBack,
		},
	}}

	if actor.Lifelines <= 0 {
		actor.Eliminated = true
		events = append(events, Event{
			Name:    "playerEliminated",
			Payload: map[string]interface{}{"playerId": actor.ID.String()},
		})

		if survivor := e.soleSurvivor(); survivor != nil {
			e.state.Finished = true
			e.state.WinnerID = &survivor.ID
			return &Result{Events: events}, nil
		}
	}

	e.advanceTurn()
	events = append(events, e.turnChanged())
	return &Result{Events: events, StartClock: e.turnTimer}, nil
}

func (e *MemoryEngine) Terminal() bool { return e.state.Finished }

func (e *MemoryEngine) Winner() (uuid.UUID, bool) {
	if e.state.WinnerID == nil {
		return uuid.Nil, false
	}
	return *e.state.WinnerID, true
}

func (e *MemoryEngine) Scores() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(e.state.Players))
	for _, p := range e.state.Players {
		out[p.ID] = p.Score
	}
	return out
}

func (e *MemoryEngine) CurrentActor() uuid.UUID { return e.current().ID }

func (e *MemoryEngine) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.state)
}

func (e *MemoryEngine) Restore(raw json.RawMessage) error {
	return json.Unmarshal(raw, &e.state)
}

// State is the client view of the live game: the board with unmatched
// face-down symbols hidden, plus per-player score and lifeline standing.
func (e *MemoryEngine) State() interface{} {
	players := make([]map[string]interface{}, len(e.state.Players))
	for i, p := range e.state.Players {
		players[i] = map[string]interface{}{
			"playerId":   p.ID.String(),
			"seat":       p.Seat,
			"score":      p.Score,
			"lifelines":  p.Lifelines,
			"eliminated": p.Eliminated,
		}
	}
	return map[string]interface{}{
		"board":        e.Board(),
		"players":      players,
		"matchedPairs": e.state.Matched,
		"totalPairs":   e.state.Pairs,
	}
}

// Board returns the client view: matched and face-up symbols, the rest hidden.
func (e *MemoryEngine) Board() []map[string]interface{} {
	out := make([]map[string]interface{}, len(e.state.Cards))
	for i, c := range e.state.Cards {
		cell := map[string]interface{}{"position": i, "matched": c.Matched}
		if c.Matched || e.isRevealed(i) {
			cell["symbol"] = memorySymbols[c.Symbol]
		}
		out[i] = cell
	}
	return out
}

func (e *MemoryEngine) isRevealed(pos int) bool {
	for _, r := range e.state.Revealed {
		if r == pos {
			return true
		}
	}
	return false
}

func (e *MemoryEngine) current() *memoryPlayer {
	return &e.state.Players[e.state.Turn]
}

// advanceTurn compacts over eliminated players.
func (e *MemoryEngine) advanceTurn() {
	n := len(e.state.Players)
	for i := 1; i <= n; i++ {
		next := (e.state.Turn + i) % n
		if !e.state.Players[next].Eliminated {
			e.state.Turn = next
			return
		}
	}
}

func (e *MemoryEngine) soleSurvivor() *memoryPlayer {
	var survivor *memoryPlayer
	for i := range e.state.Players {
		if e.state.Players[i].Eliminated {
			continue
		}
		if survivor != nil {
			return nil
		}
		survivor = &e.state.Players[i]
	}
	return survivor
}

// finishByScore picks the highest score, ties broken by earliest to reach it.
func (e *MemoryEngine) finishByScore() {
	var winner *memoryPlayer
	for i := range e.state.Players {
		p := &e.state.Players[i]
		if p.Eliminated {
			continue
		}
		if winner == nil || p.Score > winner.Score ||
			(p.Score == winner.Score && p.LastScoreAt < winner.LastScoreAt) {
			winner = p
		}
	}
	e.state.Finished = true
	if winner != nil {
		e.state.WinnerID = &winner.ID
	}
}

func (e *MemoryEngine) scoreBoard() map[string]int {
	out := make(map[string]int, len(e.state.Players))
	for _, p := range e.state.Players {
		out[p.ID.String()] = p.Score
	}
	return out
}

func (e *MemoryEngine) turnChanged() Event {
	return Event{
		Name:    "turnChanged",
		Payload: map[string]interface{}{"currentPlayerId": e.current().ID.String()},
	}
}
