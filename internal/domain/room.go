package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameType enumerates the supported games.
type GameType string

const (
	GameClassicLudo   GameType = "CLASSIC_LUDO"
	GameFastLudo      GameType = "FAST_LUDO"
	GameMemory        GameType = "MEMORY"
	GameSnakesLadders GameType = "SNAKES_LADDERS"
)

// ValidGameType reports whether t is one of the four supported games.
func ValidGameType(t GameType) bool {
	switch t {
	case GameClassicLudo, GameFastLudo, GameMemory, GameSnakesLadders:
		return true
	}
	return false
}

// RoomStatus is the lifecycle status of a room.
// Transitions are monotonic forward:
// WAITING → PLAYING → FINISHED, WAITING → CANCELLED.
type RoomStatus string

const (
	RoomWaiting   RoomStatus = "WAITING"
	RoomPlaying   RoomStatus = "PLAYING"
	RoomFinished  RoomStatus = "FINISHED"
	RoomCancelled RoomStatus = "CANCELLED"
)

// Color is a Ludo seat colour, assigned cyclically at matchmaking.
type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
)

// SeatColors is the cyclic seat → colour assignment order.
var SeatColors = []Color{ColorRed, ColorBlue, ColorGreen, ColorYellow}

// Room represents a rooms row: one game instance.
type Room struct {
	ID               uuid.UUID       `json:"id"`
	GameType         GameType        `json:"game_type"`
	MaxPlayers       int             `json:"max_players"`
	EntryFee         int64           `json:"entry_fee"`
	PrizePool        int64           `json:"prize_pool"`
	Status           RoomStatus      `json:"status"`
	EngineState      json.RawMessage `json:"engine_state,omitempty"`
	CurrentTurnIndex int             `json:"current_turn_index"`
	WinnerID         *uuid.UUID      `json:"winner_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// Participant is a user's seat at a room.
// (user, room) is unique; seat is unique within the room.
type Participant struct {
	RoomID uuid.UUID `json:"room_id"`
	UserID uuid.UUID `json:"user_id"`
	Seat   int       `json:"seat"`
	Color  Color     `json:"color"`
	Score  int       `json:"score"`
}

// PrizePool computes 90% of the pooled entry fees, truncated toward zero.
// The remaining 10% is the platform fee.
func PrizePool(entryFee int64, maxPlayers int) int64 {
	return entryFee * int64(maxPlayers) * 9 / 10
}
