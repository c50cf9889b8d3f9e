package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
)

// ExecuteCredit adds funds to the available balance as a COMPLETED entry.
// Used for game winnings, refunds and referral bonuses.
// Pattern: Lock → Idempotency → PostLedgerEntry
func (e *Engine) ExecuteCredit(ctx context.Context, tx pgx.Tx, params domain.CreditParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, err
	}
	if params.Kind.Sign() != 1 {
		return nil, domain.ErrValidation(fmt.Sprintf("kind %s is not a credit", params.Kind))
	}

	wallet, err := e.LockWalletForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	// A game pays each kind to a user at most once.
	if params.GameID != nil {
		existing, err := e.entries.FindByGameAndKind(ctx, tx, *params.GameID, params.Kind, params.UserID)
		if err != nil {
			return nil, fmt.Errorf("credit idempotency: %w", err)
		}
		if existing != nil {
			return &domain.CommandResult{Entry: existing, Wallet: wallet, Idempotent: true}, nil
		}
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		UserID:        params.UserID,
		Kind:          params.Kind,
		Status:        domain.StatusCompleted,
		Amount:        params.Amount,
		BalanceUpdate: domain.BalanceUpdate{Balance: params.Amount},
		GameID:        params.GameID,
		Memo:          params.Memo,
		Metadata:      ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("credit post: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}
