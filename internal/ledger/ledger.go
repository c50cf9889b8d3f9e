package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/repository"
)

// SignatureVerifier validates a payment gateway receipt signature.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// Engine provides the foundational ledger operations:
//  1. LockWalletForUpdate — row-level pessimistic lock
//  2. PostLedgerEntry — atomic balance update + append-only insert + outbox event
//
// All money commands delegate to these two primitives.
type Engine struct {
	wallets repository.WalletRepository
	entries repository.LedgerRepository
	outbox  repository.OutboxRepository
	gateway SignatureVerifier
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	wallets repository.WalletRepository,
	entries repository.LedgerRepository,
	outbox repository.OutboxRepository,
	gateway SignatureVerifier,
) *Engine {
	return &Engine{
		wallets: wallets,
		entries: entries,
		outbox:  outbox,
		gateway: gateway,
	}
}

// LockWalletForUpdate acquires a row-level lock and returns the wallet.
// Must be called within a transaction.
func (e *Engine) LockWalletForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := e.wallets.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet", userID.String())
	}
	return wallet, nil
}

// PostLedgerEntry atomically updates wallet balances and inserts a ledger entry.
//
// Steps:
//  1. Update wallet balances using server-side arithmetic (dynamic SET clauses)
//  2. Insert the ledger entry with the post-update balance snapshot
//  3. Insert an outbox event
//
// All 3 steps run within the caller's transaction. A zero BalanceUpdate skips
// step 1 and snapshots the current balances (pending entries hold no funds).
func (e *Engine) PostLedgerEntry(ctx context.Context, tx pgx.Tx, params domain.PostLedgerEntryParams) (*domain.LedgerEntry, *domain.Wallet, error) {
	var wallet *domain.Wallet
	var err error

	if params.BalanceUpdate.HasBalanceDelta() || params.BalanceUpdate.HasReservedDelta() {
		wallet, err = e.wallets.UpdateBalances(ctx, tx, params.UserID, params.BalanceUpdate)
		if err != nil {
			return nil, nil, fmt.Errorf("update balances: %w", err)
		}
	} else {
		wallet, err = e.wallets.FindByUser(ctx, tx, params.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("read balances: %w", err)
		}
	}
	if wallet == nil {
		return nil, nil, domain.ErrNotFound("wallet", params.UserID.String())
	}

	entry, err := e.entries.Insert(ctx, tx, params, wallet.Balances)
	if err != nil {
		return nil, nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewEntryPostedEvent(entry)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return entry, wallet, nil
}

// VerifyInvariant checks that available+reserved funds equal the signed sum of
// COMPLETED entries. Returns the discrepancy, zero when the books balance.
func (e *Engine) VerifyInvariant(ctx context.Context, db repository.DBTX, userID uuid.UUID) (int64, error) {
	wallet, err := e.wallets.FindByUser(ctx, db, userID)
	if err != nil {
		return 0, fmt.Errorf("verify invariant: %w", err)
	}
	if wallet == nil {
		return 0, domain.ErrNotFound("wallet", userID.String())
	}
	credits, debits, err := e.entries.CompletedSums(ctx, db, userID)
	if err != nil {
		return 0, fmt.Errorf("verify invariant: %w", err)
	}
	return wallet.Total() - (credits - debits), nil
}
