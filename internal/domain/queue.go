package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is a user's intent to join a game at a given stake.
// At most one entry per user; destroyed when matched or on explicit leave.
type QueueEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	GameType   GameType  `json:"game_type"`
	MaxPlayers int       `json:"max_players"`
	EntryFee   int64     `json:"entry_fee"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueGroup identifies a matchable bucket of queue entries.
type QueueGroup struct {
	GameType   GameType
	MaxPlayers int
	EntryFee   int64
}
