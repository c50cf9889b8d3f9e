package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
)

// ExecuteReserveDeposit records a PENDING deposit before the user is sent to
// the payment gateway. No funds move until the gateway confirms.
func (e *Engine) ExecuteReserveDeposit(ctx context.Context, tx pgx.Tx, params domain.ReserveDepositParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, err
	}

	if _, err := e.LockWalletForUpdate(ctx, tx, params.UserID); err != nil {
		return nil, fmt.Errorf("reserve deposit: %w", err)
	}

	entry, wallet, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		UserID:   params.UserID,
		Kind:     domain.EntryDeposit,
		Status:   domain.StatusPending,
		Amount:   params.Amount,
		Memo:     "deposit initiated",
		Metadata: ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("reserve deposit post: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: wallet}, nil
}

// ExecuteConfirmDeposit completes a PENDING deposit after verifying the gateway
// signature. The receipt (gateway payment id) is the idempotency key, so a
// replayed webhook returns the already-completed entry.
func (e *Engine) ExecuteConfirmDeposit(ctx context.Context, tx pgx.Tx, params domain.ConfirmDepositParams) (*domain.CommandResult, error) {
	if !e.gateway.Verify(params.OrderID, params.PaymentID, params.Signature) {
		return nil, domain.ErrSignatureInvalid()
	}

	pending, err := e.entries.FindByID(ctx, tx, params.PendingID)
	if err != nil {
		return nil, fmt.Errorf("confirm deposit: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("deposit", params.PendingID.String())
	}
	if pending.Kind != domain.EntryDeposit {
		return nil, domain.ErrWrongState("entry is not a deposit")
	}

	wallet, err := e.LockWalletForUpdate(ctx, tx, pending.UserID)
	if err != nil {
		return nil, fmt.Errorf("confirm deposit: %w", err)
	}

	existing, err := e.entries.FindByReceipt(ctx, tx, params.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("confirm deposit idempotency: %w", err)
	}
	if existing != nil {
		return &domain.CommandResult{Entry: existing, Wallet: wallet, Idempotent: true}, nil
	}

	if pending.Status != domain.StatusPending {
		return nil, domain.ErrWrongState(fmt.Sprintf("deposit is %s", pending.Status))
	}

	receipt := params.PaymentID
	entry, err := e.entries.UpdateStatus(ctx, tx, pending.ID, domain.StatusCompleted, &receipt)
	if err != nil {
		return nil, fmt.Errorf("complete deposit: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrWrongState("deposit already settled")
	}

	updated, err := e.wallets.UpdateBalances(ctx, tx, pending.UserID, domain.BalanceUpdate{Balance: pending.Amount})
	if err != nil {
		return nil, fmt.Errorf("credit deposit: %w", err)
	}

	// Snapshot on the entry reflects balances after the credit.
	entry.BalanceAfter = updated.Balance
	entry.ReservedAfter = updated.ReservedBalance

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Wallet: updated}, nil
}

// ExecuteFailDeposit marks a PENDING deposit FAILED. No funds ever moved.
func (e *Engine) ExecuteFailDeposit(ctx context.Context, tx pgx.Tx, pendingID uuid.UUID) (*domain.CommandResult, error) {
	pending, err := e.entries.FindByID(ctx, tx, pendingID)
	if err != nil {
		return nil, fmt.Errorf("fail deposit: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("deposit", pendingID.String())
	}
	if pending.Kind != domain.EntryDeposit || pending.Status != domain.StatusPending {
		return nil, domain.ErrWrongState("not a pending deposit")
	}

	wallet, err := e.LockWalletForUpdate(ctx, tx, pending.UserID)
	if err != nil {
		return nil, fmt.Errorf("fail deposit: %w", err)
	}

	entry, err := e.entries.UpdateStatus(ctx, tx, pending.ID, domain.StatusFailed, nil)
	if err != nil {
		return nil, fmt.Errorf("fail deposit: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrWrongState("deposit already settled")
	}

	return &domain.CommandResult{Entry: entry, Wallet: wallet}, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}
