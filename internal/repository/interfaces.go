package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/khelzone/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to users.
type UserRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)
	FindByPhone(ctx context.Context, db DBTX, phone string) (*domain.User, error)
	Create(ctx context.Context, db DBTX, user *domain.User) error
}

// WalletRepository provides access to wallets.
type WalletRepository interface {
	FindByUser(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.Wallet, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the wallet.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)

	Create(ctx context.Context, db DBTX, wallet *domain.Wallet) error

	// UpdateBalances atomically updates balance columns using server-side arithmetic
	// with dynamic SET clauses.
	UpdateBalances(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta domain.BalanceUpdate) (*domain.Wallet, error)
}

// LedgerRepository provides access to ledger_entries.
type LedgerRepository interface {
	// Insert creates a new ledger entry with a balance snapshot. Returns the inserted row.
	Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error)

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.LedgerEntry, error)

	// FindByReceipt checks the deposit idempotency index for a duplicate receipt.
	FindByReceipt(ctx context.Context, db DBTX, receipt string) (*domain.LedgerEntry, error)

	// FindByGameAndKind looks up a user's entry by its (game, kind) idempotency key.
	FindByGameAndKind(ctx context.Context, db DBTX, gameID uuid.UUID, kind domain.EntryKind, userID uuid.UUID) (*domain.LedgerEntry, error)

	// UpdateStatus applies a terminal transition and optionally attaches a receipt.
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.EntryStatus, receipt *string) (*domain.LedgerEntry, error)

	// ListByUser returns entries for a user, newest first, with cursor pagination.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.LedgerEntry, error)

	// ListByGame returns all entries referencing a room, oldest first.
	ListByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.LedgerEntry, error)

	// CompletedSums returns the signed sum of COMPLETED credits and debits for a user.
	CompletedSums(ctx context.Context, db DBTX, userID uuid.UUID) (credits, debits int64, err error)
}

// RoomRepository provides access to rooms and participants.
type RoomRepository interface {
	Insert(ctx context.Context, db DBTX, room *domain.Room) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Room, error)

	// ListActive returns WAITING and PLAYING rooms, oldest first. Used by the
	// boot-time recovery pass to respawn workers after a restart.
	ListActive(ctx context.Context, db DBTX) ([]*domain.Room, error)

	// SaveSnapshot persists status, engine state, turn index, winner and timestamps.
	// Last-writer-wins keyed by room id; callers serialise per room.
	SaveSnapshot(ctx context.Context, db DBTX, room *domain.Room) error

	InsertParticipant(ctx context.Context, db DBTX, p *domain.Participant) error
	ListParticipants(ctx context.Context, db DBTX, roomID uuid.UUID) ([]domain.Participant, error)
	UpdateScore(ctx context.Context, db DBTX, roomID, userID uuid.UUID, score int) error
}

// QueueRepository provides access to matchmaking_queue.
type QueueRepository interface {
	// Replace removes any prior entry for the user and inserts a fresh one.
	Replace(ctx context.Context, db DBTX, entry *domain.QueueEntry) error

	DeleteByUser(ctx context.Context, db DBTX, userID uuid.UUID) error
	DeleteByID(ctx context.Context, db DBTX, id uuid.UUID) error

	// Groups returns matchable buckets with their pending counts, largest first.
	Groups(ctx context.Context, db DBTX) (map[domain.QueueGroup]int, error)

	// OldestLocked selects the oldest limit entries of a group with
	// FOR UPDATE SKIP LOCKED, ordered by enqueued_at then id.
	OldestLocked(ctx context.Context, tx pgx.Tx, group domain.QueueGroup, limit int) ([]domain.QueueEntry, error)

	FindByUser(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.QueueEntry, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}
