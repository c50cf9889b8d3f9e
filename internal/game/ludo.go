package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
)

// Ring geometry. A piece's Progress counts cells travelled from its entry:
// 0..50 on the ring, 51..55 in the home stretch, 56 finished.
const (
	ludoRing        = 52
	ludoRingLast    = 50
	ludoFinished    = 56
	ludoKillPoints  = 5
	ludoKillPenalty = 3
	ludoFinishBonus = 10
	ludoNoMoveDelay = 3 * time.Second

	tagLudoAdvance = "ludo.advance"
)

var ludoEntry = map[domain.Color]int{
	domain.ColorRed:    0,
	domain.ColorBlue:   13,
	domain.ColorGreen:  26,
	domain.ColorYellow: 39,
}

var ludoSafeCells = map[int]bool{
	0: true, 13: true, 26: true, 39: true,
	8: true, 21: true, 34: true, 47: true,
}

type ludoPieceState string

const (
	pieceHome        ludoPieceState = "home"
	pieceBoard       ludoPieceState = "board"
	pieceHomeStretch ludoPieceState = "homeStretch"
	pieceFinishedSt  ludoPieceState = "finished"
)

type ludoPiece struct {
	State    ludoPieceState `json:"state"`
	Progress int            `json:"progress"`
}

type ludoPlayer struct {
	ID       uuid.UUID    `json:"id"`
	Seat     int          `json:"seat"`
	Color    domain.Color `json:"color"`
	Pieces   [4]ludoPiece `json:"pieces"`
	Score    int          `json:"score"`
	Finished int          `json:"finished"`
	Captures int          `json:"captures"`
}

type ludoState struct {
	Fast     bool         `json:"fast"`
	Players  []ludoPlayer `json:"players"`
	Turn     int          `json:"turn"`
	Dice     int          `json:"dice"` // 0 = waiting for a roll
	Seed     uint64       `json:"seed"`
	Rolls    int          `json:"rolls"`
	Finished bool         `json:"finished"`
	WinnerID *uuid.UUID   `json:"winner_id,omitempty"`
}

// LudoEngine covers both Classic and Fast Ludo.
type LudoEngine struct {
	state       ludoState
	roll        func() int
	globalClock time.Duration
}

// NewLudoEngine seats the players; fast=true puts all pieces on the board at
// their entry cells and arms the global clock.
func NewLudoEngine(roomID uuid.UUID, players []Player, fast bool, cfg Config) *LudoEngine {
	seed := Seed(roomID)

	ps := make([]ludoPlayer, len(players))
	for i, p := range players {
		lp := ludoPlayer{ID: p.ID, Seat: p.Seat, Color: p.Color}
		if fast {
			for j := range lp.Pieces {
				lp.Pieces[j] = ludoPiece{State: pieceBoard, Progress: 0}
			}
		} else {
			for j := range lp.Pieces {
				lp.Pieces[j] = ludoPiece{State: pieceHome}
			}
		}
		ps[i] = lp
	}

	var clock time.Duration
	if fast {
		clock = cfg.FastTimerMulti
		if len(players) == 2 {
			clock = cfg.FastTimer2P
		}
		if clock <= 0 {
			clock = 600 * time.Second
		}
	}

	return &LudoEngine{
		state: ludoState{
			Fast:    fast,
			Players: ps,
			Seed:    seed,
		},
		roll:        newDice(seed),
		globalClock: clock,
	}
}

func (e *LudoEngine) Init() (*Result, error) {
	result := &Result{Events: []Event{e.turnChanged()}}
	if e.state.Fast {
		result.StartClock = e.globalClock
	}
	return result, nil
}

func (e *LudoEngine) Apply(actorID uuid.UUID, action Action) (*Result, error) {
	if e.state.Finished {
		return nil, domain.ErrWrongState("game is over")
	}
	if e.current().ID != actorID {
		return nil, domain.ErrNotYourTurn()
	}

	switch action.Kind {
	case ActionRollDice:
		return e.applyRoll()
	case ActionMovePiece:
		return e.applyMove(action.PieceID)
	default:
		return nil, domain.ErrValidation("unsupported action for ludo")
	}
}

func (e *LudoEngine) applyRoll() (*Result, error) {
	if e.state.Dice != 0 {
		return nil, domain.ErrWrongState("dice already rolled")
	}

	value := e.roll()
	e.state.Dice = value
	e.state.Rolls++

	movable := e.movablePieces(e.current(), value)
	result := &Result{
		Events: []Event{{
			Name: "diceRolled",
			Payload: map[string]interface{}{
				"playerId":      e.current().ID.String(),
				"value":         value,
				"movablePieces": movable,
			},
		}},
	}

	if len(movable) > 0 {
		return result, nil
	}

	// No legal move.
	if value == 6 && !e.state.Fast {
		// Classic: keep the turn, roll again.
		e.state.Dice = 0
		return result, nil
	}
	if e.state.Fast {
		// Fast: advance 3s later so the client can animate the dead roll.
		result.Delay = ludoNoMoveDelay
		result.DelayTag = tagLudoAdvance
		return result, nil
	}

	e.state.Dice = 0
	e.advanceTurn()
	result.Events = append(result.Events, e.turnChanged())
	return result, nil
}

func (e *LudoEngine) applyMove(pieceID int) (*Result, error) {
	if e.state.Dice == 0 {
		return nil, domain.ErrWrongState("roll the dice first")
	}
	if pieceID < 0 || pieceID > 3 {
		return nil, domain.ErrValidation("piece id out of range")
	}

	actor := e.current()
	dice := e.state.Dice
	if !e.pieceMovable(actor, pieceID, dice) {
		return nil, domain.ErrValidation("piece is not movable")
	}

	piece := &actor.Pieces[pieceID]
	var captured []map[string]interface{}

	if piece.State == pieceHome {
		piece.State = pieceBoard
		piece.Progress = 0
	} else {
		piece.Progress += dice
		switch {
		case piece.Progress == ludoFinished:
			piece.State = pieceFinishedSt
			actor.Finished++
			actor.Score += ludoFinishBonus
		case piece.Progress > ludoRingLast:
			piece.State = pieceHomeStretch
		}
	}

	// Capture check on ring cells only.
	if piece.State == pieceBoard {
		cell := e.cellOf(actor.Color, piece.Progress)
		if !ludoSafeCells[cell] {
			captured = e.captureAt(actor, cell)
		}
	}

	extraTurn := dice == 6
	e.state.Dice = 0

	events := []Event{{
		Name: "pieceMoved",
		Payload: map[string]interface{}{
			"playerId":       actor.ID.String(),
			"pieceId":        pieceID,
			"boardAfter":     e.board(),
			"capturedPieces": captured,
			"extraTurn":      extraTurn,
		},
	}}

	if actor.Finished == 4 {
		e.state.Finished = true
		e.state.WinnerID = &actor.ID
		return &Result{Events: events, StopClock: e.state.Fast}, nil
	}

	result := &Result{Events: events}
	if !extraTurn {
		e.advanceTurn()
		result.Events = append(result.Events, e.turnChanged())
	}
	return result, nil
}

// Resolve handles the scheduled advance after a dead roll (Fast).
func (e *LudoEngine) Resolve(tag string) (*Result, error) {
	if tag != tagLudoAdvance {
		return nil, fmt.Errorf("unknown delay tag: %s", tag)
	}
	if e.state.Finished || e.state.Dice == 0 {
		return &Result{}, nil
	}
	e.state.Dice = 0
	e.advanceTurn()
	return &Result{Events: []Event{e.turnChanged()}}, nil
}

// OnTimeout ends a Fast game at global clock expiry: highest score wins,
// ties by pieces finished, then captures, then seat.
func (e *LudoEngine) OnTimeout() (*Result, error) {
	if !e.state.Fast || e.state.Finished {
		return &Result{}, nil
	}

	winner := &e.state.Players[0]
	for i := 1; i < len(e.state.Players); i++ {
		p := &e.state.Players[i]
		if p.Score > winner.Score ||
			(p.Score == winner.Score && p.Finished > winner.Finished) ||
			(p.Score == winner.Score && p.Finished == winner.Finished && p.Captures > winner.Captures) {
			winner = p
		}
	}

	e.state.Finished = true
	e.state.WinnerID = &winner.ID
	return &Result{}, nil
}

func (e *LudoEngine) Terminal() bool { return e.state.Finished }

func (e *LudoEngine) Winner() (uuid.UUID, bool) {
	if e.state.WinnerID == nil {
		return uuid.Nil, false
	}
	return *e.state.WinnerID, true
}

func (e *LudoEngine) Scores() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(e.state.Players))
	for _, p := range e.state.Players {
		out[p.ID] = p.Score
	}
	return out
}

func (e *LudoEngine) CurrentActor() uuid.UUID { return e.current().ID }

// State is the client view of the live game: every piece position plus the
// pending dice value, so a reconnecting player can resync mid-turn.
func (e *LudoEngine) State() interface{} {
	return map[string]interface{}{
		"board": e.board(),
		"dice":  e.state.Dice,
		"fast":  e.state.Fast,
	}
}

func (e *LudoEngine) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.state)
}

func (e *LudoEngine) Restore(raw json.RawMessage) error {
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

func (e *LudoEngine) current() *ludoPlayer {
	return &e.state.Players[e.state.Turn]
}

func (e *LudoEngine) advanceTurn() {
	e.state.Turn = (e.state.Turn + 1) % len(e.state.Players)
}

// cellOf maps a colour-relative progress to an absolute ring cell.
func (e *LudoEngine) cellOf(color domain.Color, progress int) int {
	return (ludoEntry[color] + progress) % ludoRing
}

func (e *LudoEngine) pieceMovable(p *ludoPlayer, pieceID, dice int) bool {
	piece := p.Pieces[pieceID]
	switch piece.State {
	case pieceHome:
		return !e.state.Fast && dice == 6
	case pieceBoard, pieceHomeStretch:
		return piece.Progress+dice <= ludoFinished
	default:
		return false
	}
}

func (e *LudoEngine) movablePieces(p *ludoPlayer, dice int) []int {
	out := []int{}
	for i := range p.Pieces {
		if e.pieceMovable(p, i, dice) {
			out = append(out, i)
		}
	}
	return out
}

// captureAt sends every opposing piece on the cell back. Classic returns the
// victim to home; Fast puts it on the victim's own entry cell.
func (e *LudoEngine) captureAt(actor *ludoPlayer, cell int) []map[string]interface{} {
	var captured []map[string]interface{}
	for i := range e.state.Players {
		victim := &e.state.Players[i]
		if victim.ID == actor.ID {
			continue
		}
		for j := range victim.Pieces {
			piece := &victim.Pieces[j]
			if piece.State != pieceBoard || e.cellOf(victim.Color, piece.Progress) != cell {
				continue
			}
			if e.state.Fast {
				piece.Progress = 0
			} else {
				piece.State = pieceHome
				piece.Progress = 0
			}
			actor.Score += ludoKillPoints
			actor.Captures++
			victim.Score -= ludoKillPenalty
			if victim.Score < 0 {
				victim.Score = 0
			}
			captured = append(captured, map[string]interface{}{
				"playerId": victim.ID.String(),
				"pieceId":  j,
			})
		}
	}
	return captured
}

// board is the client view of every piece.
func (e *LudoEngine) board() []map[string]interface{} {
	var out []map[string]interface{}
	for _, p := range e.state.Players {
		for i, piece := range p.Pieces {
			entry := map[string]interface{}{
				"playerId": p.ID.String(),
				"pieceId":  i,
				"state":    string(piece.State),
			}
			switch piece.State {
			case pieceBoard:
				entry["cell"] = e.cellOf(p.Color, piece.Progress)
			case pieceHomeStretch:
				entry["stretchCell"] = piece.Progress - ludoRingLast - 1
			}
			out = append(out, entry)
		}
	}
	return out
}

func (e *LudoEngine) turnChanged() Event {
	return Event{
		Name:    "turnChanged",
		Payload: map[string]interface{}{"currentPlayerId": e.current().ID.String()},
	}
}
