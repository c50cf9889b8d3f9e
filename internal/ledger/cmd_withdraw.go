package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
)

// ExecuteRequestWithdrawal holds funds for a withdrawal (two-phase).
// Phase 1: balance -= amount, reserved_balance += amount, entry is PENDING.
// The hold keeps the funds out of play while an operator reviews the payout.
func (e *Engine) ExecuteRequestWithdrawal(ctx context.Context, tx pgx.Tx, params domain.RequestWithdrawalParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, err
	}

	wallet, err := e.LockWalletForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	if wallet.Balance < params.Amount {
		return nil, domain.ErrInsufficientBalance()
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		UserID:        params.UserID,
		Kind:          domain.EntryWithdrawal,
		Status:        domain.StatusPending,
		Amount:        params.Amount,
		BalanceUpdate: domain.BalanceUpdate{Balance: -params.Amount, Reserved: params.Amount},
		Memo:          "withdrawal requested",
		Metadata:      ensureJSON(params.BankDetails),
	})
	if err != nil {
		return nil, fmt.Errorf("withdraw post: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}

// ExecuteCompleteWithdrawal releases the hold after the payout went through.
// Phase 2: reserved_balance -= amount, entry becomes COMPLETED with a receipt.
func (e *Engine) ExecuteCompleteWithdrawal(ctx context.Context, tx pgx.Tx, pendingID uuid.UUID, receipt string) (*domain.CommandResult, error) {
	pending, err := e.entries.FindByID(ctx, tx, pendingID)
	if err != nil {
		return nil, fmt.Errorf("complete withdrawal: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("withdrawal", pendingID.String())
	}
	if pending.Kind != domain.EntryWithdrawal || pending.Status != domain.StatusPending {
		return nil, domain.ErrWrongState("not a pending withdrawal")
	}

	if _, err := e.LockWalletForUpdate(ctx, tx, pending.UserID); err != nil {
		return nil, fmt.Errorf("complete withdrawal: %w", err)
	}

	entry, err := e.entries.UpdateStatus(ctx, tx, pending.ID, domain.StatusCompleted, strPtr(receipt))
	if err != nil {
		return nil, fmt.Errorf("complete withdrawal: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrWrongState("withdrawal already settled")
	}

	updated, err := e.wallets.UpdateBalances(ctx, tx, pending.UserID, domain.BalanceUpdate{Reserved: -pending.Amount})
	if err != nil {
		return nil, fmt.Errorf("release hold: %w", err)
	}

	entry.BalanceAfter = updated.Balance
	entry.ReservedAfter = updated.ReservedBalance

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}

// ExecuteFailWithdrawal returns held funds to the available balance.
// The entry moves to FAILED (gateway rejection) or CANCELLED (user request).
func (e *Engine) ExecuteFailWithdrawal(ctx context.Context, tx pgx.Tx, pendingID uuid.UUID, status domain.EntryStatus) (*domain.CommandResult, error) {
	if status != domain.StatusFailed && status != domain.StatusCancelled {
		return nil, domain.ErrValidation("status must be FAILED or CANCELLED")
	}

	pending, err := e.entries.FindByID(ctx, tx, pendingID)
	if err != nil {
		return nil, fmt.Errorf("fail withdrawal: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("withdrawal", pendingID.String())
	}
	if pending.Kind != domain.EntryWithdrawal || pending.Status != domain.StatusPending {
		return nil, domain.ErrWrongState("not a pending withdrawal")
	}

	if _, err := e.LockWalletForUpdate(ctx, tx, pending.UserID); err != nil {
		return nil, fmt.Errorf("fail withdrawal: %w", err)
	}

	entry, err := e.entries.UpdateStatus(ctx, tx, pending.ID, status, nil)
	if err != nil {
		return nil, fmt.Errorf("fail withdrawal: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrWrongState("withdrawal already settled")
	}

	updated, err := e.wallets.UpdateBalances(ctx, tx, pending.UserID, domain.BalanceUpdate{
		Balance:  pending.Amount,
		Reserved: -pending.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("restore hold: %w", err)
	}

	entry.BalanceAfter = updated.Balance
	entry.ReservedAfter = updated.ReservedBalance

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}
