package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
)

// ExecuteDebit removes funds from the available balance as a COMPLETED entry.
// Used for game entry fees at match creation time.
func (e *Engine) ExecuteDebit(ctx context.Context, tx pgx.Tx, params domain.DebitParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, err
	}
	if params.Kind.Sign() != -1 {
		return nil, domain.ErrValidation(fmt.Sprintf("kind %s is not a debit", params.Kind))
	}

	wallet, err := e.LockWalletForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	if wallet.Balance < params.Amount {
		return nil, domain.ErrInsufficientBalance()
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		UserID:        params.UserID,
		Kind:          params.Kind,
		Status:        domain.StatusCompleted,
		Amount:        params.Amount,
		BalanceUpdate: domain.BalanceUpdate{Balance: -params.Amount},
		GameID:        params.GameID,
		Memo:          params.Memo,
		Metadata:      ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("debit post: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}
