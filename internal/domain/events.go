package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types published through the outbox.
type EventType string

const (
	EventEntryPosted   EventType = "arena.wallet.entry.posted"
	EventRoomCreated   EventType = "arena.room.created"
	EventRoomStarted   EventType = "arena.room.started"
	EventRoomFinished  EventType = "arena.room.finished"
	EventRoomCancelled EventType = "arena.room.cancelled"
	EventPrizeSettled  EventType = "arena.room.prize.settled"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet AggregateType = "wallet"
	AggregateRoom   AggregateType = "room"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// NewEntryPostedEvent creates the standard wallet event for a ledger entry.
func NewEntryPostedEvent(entry *LedgerEntry) OutboxDraft {
	payload, _ := json.Marshal(entry)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   entry.UserID.String(),
		EventType:     EventEntryPosted,
		PartitionKey:  entry.UserID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRoomEvent creates a room lifecycle event.
func NewRoomEvent(evtType EventType, room *Room) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"room_id":    room.ID.String(),
		"game_type":  room.GameType,
		"status":     room.Status,
		"entry_fee":  room.EntryFee,
		"prize_pool": room.PrizePool,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRoom,
		AggregateID:   room.ID.String(),
		EventType:     evtType,
		PartitionKey:  room.ID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewPrizeSettledEvent records a completed winner payout.
func NewPrizeSettledEvent(roomID, winnerID uuid.UUID, amount int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"room_id":   roomID.String(),
		"winner_id": winnerID.String(),
		"amount":    amount,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRoom,
		AggregateID:   roomID.String(),
		EventType:     EventPrizeSettled,
		PartitionKey:  roomID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
