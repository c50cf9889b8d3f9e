package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/guard"
	"github.com/khelzone/platform/internal/repository"
)

// TxBeginner opens database transactions (satisfied by pgxpool.Pool).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ledgerAPI is the slice of the ledger engine settlement needs.
type ledgerAPI interface {
	ExecuteCredit(ctx context.Context, tx pgx.Tx, params domain.CreditParams) (*domain.CommandResult, error)
	ExecuteRefund(ctx context.Context, tx pgx.Tx, params domain.RefundParams) (*domain.CommandResult, error)
}

// Settler pays out finished rooms and refunds cancelled ones. Double
// settlement is blocked twice over: an in-memory settled-room set and the
// ledger's per-(game, kind, user) idempotency.
type Settler struct {
	db      TxBeginner
	engine  ledgerAPI
	entries repository.LedgerRepository
	outbox  repository.OutboxRepository
	settled *guard.IdempotencyGuard
	logger  *slog.Logger
}

// NewSettler creates a settlement service.
func NewSettler(db TxBeginner, engine ledgerAPI, entries repository.LedgerRepository, outbox repository.OutboxRepository, logger *slog.Logger) *Settler {
	return &Settler{
		db:      db,
		engine:  engine,
		entries: entries,
		outbox:  outbox,
		settled: guard.NewIdempotencyGuard(),
		logger:  logger,
	}
}

// SettleWinner credits the prize pool to the winner, exactly once per room.
func (s *Settler) SettleWinner(ctx context.Context, room *domain.Room, winnerID uuid.UUID) error {
	key := "settle:" + room.ID.String()
	if res := s.settled.Check(ctx, key); !res.Allowed {
		s.logger.Info("room already settled", "roomId", room.ID)
		return nil
	}

	if room.PrizePool <= 0 {
		// Free room, nothing to pay out.
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
		UserID: winnerID,
		Kind:   domain.EntryGameWinning,
		Amount: room.PrizePool,
		Memo:   "prize payout",
		GameID: &room.ID,
	})
	if err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("credit winner: %w", err)
	}

	if !result.Idempotent {
		if err := s.outbox.Insert(ctx, tx, domain.NewPrizeSettledEvent(room.ID, winnerID, room.PrizePool)); err != nil {
			s.settled.Remove(key)
			return fmt.Errorf("insert prize event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("commit settlement: %w", err)
	}

	s.logger.Info("prize settled",
		"roomId", room.ID, "winnerId", winnerID, "amount", room.PrizePool,
		"idempotent", result.Idempotent)
	return nil
}

// CancelRoom refunds every completed entry-fee debit of the room.
func (s *Settler) CancelRoom(ctx context.Context, room *domain.Room) error {
	key := "cancel:" + room.ID.String()
	if res := s.settled.Check(ctx, key); !res.Allowed {
		s.logger.Info("room already refunded", "roomId", room.ID)
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := s.entries.ListByGame(ctx, tx, room.ID)
	if err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("list room entries: %w", err)
	}

	refunded := 0
	for _, entry := range entries {
		if entry.Kind != domain.EntryGameEntry || entry.Status != domain.StatusCompleted {
			continue
		}
		_, err := s.engine.ExecuteRefund(ctx, tx, domain.RefundParams{
			UserID: entry.UserID,
			GameID: room.ID,
			Amount: entry.Amount,
			Reason: "room cancelled",
		})
		if err != nil {
			s.settled.Remove(key)
			return fmt.Errorf("refund entry %s: %w", entry.ID, err)
		}
		refunded++
	}

	if err := tx.Commit(ctx); err != nil {
		s.settled.Remove(key)
		return fmt.Errorf("commit refund: %w", err)
	}

	s.logger.Info("room refunded", "roomId", room.ID, "entries", refunded)
	return nil
}
