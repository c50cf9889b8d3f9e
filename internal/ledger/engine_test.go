package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory fakes ---

type fakeWallets struct {
	wallets map[uuid.UUID]*domain.Wallet
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (f *fakeWallets) FindByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) (*domain.Wallet, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWallets) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWallets) Create(_ context.Context, _ repository.DBTX, wallet *domain.Wallet) error {
	cp := *wallet
	f.wallets[wallet.UserID] = &cp
	return nil
}

func (f *fakeWallets) UpdateBalances(_ context.Context, _ pgx.Tx, userID uuid.UUID, delta domain.BalanceUpdate) (*domain.Wallet, error) {
	w := f.wallets[userID]
	w.Balance += delta.Balance
	w.ReservedBalance += delta.Reserved
	w.UpdatedAt = time.Now()
	cp := *w
	return &cp, nil
}

type fakeEntries struct {
	entries map[uuid.UUID]*domain.LedgerEntry
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{entries: make(map[uuid.UUID]*domain.LedgerEntry)}
}

func (f *fakeEntries) Insert(_ context.Context, _ repository.DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{
		ID:            uuid.New(),
		UserID:        params.UserID,
		Kind:          params.Kind,
		Status:        params.Status,
		Amount:        params.Amount,
		BalanceAfter:  balances.Balance,
		ReservedAfter: balances.ReservedBalance,
		GameID:        params.GameID,
		Receipt:       params.Receipt,
		Memo:          params.Memo,
		Metadata:      params.Metadata,
		CreatedAt:     time.Now(),
	}
	f.entries[e.ID] = e
	cp := *e
	return &cp, nil
}

func (f *fakeEntries) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.LedgerEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntries) FindByReceipt(_ context.Context, _ repository.DBTX, receipt string) (*domain.LedgerEntry, error) {
	for _, e := range f.entries {
		if e.Receipt != nil && *e.Receipt == receipt {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeEntries) FindByGameAndKind(_ context.Context, _ repository.DBTX, gameID uuid.UUID, kind domain.EntryKind, userID uuid.UUID) (*domain.LedgerEntry, error) {
	for _, e := range f.entries {
		if e.GameID != nil && *e.GameID == gameID && e.Kind == kind && e.UserID == userID && e.Status == domain.StatusCompleted {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeEntries) UpdateStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, status domain.EntryStatus, receipt *string) (*domain.LedgerEntry, error) {
	e, ok := f.entries[id]
	if !ok || e.Status != domain.StatusPending {
		return nil, nil
	}
	e.Status = status
	if receipt != nil {
		e.Receipt = receipt
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntries) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID, _ *string, _ int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEntries) ListByGame(_ context.Context, _ repository.DBTX, gameID uuid.UUID) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if e.GameID != nil && *e.GameID == gameID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEntries) CompletedSums(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int64, int64, error) {
	var credits, debits int64
	for _, e := range f.entries {
		if e.UserID != userID || e.Status != domain.StatusCompleted {
			continue
		}
		if e.Kind.Sign() > 0 {
			credits += e.Amount
		} else {
			debits += e.Amount
		}
	}
	return credits, debits, nil
}

type fakeOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

type fakeVerifier struct{ ok bool }

func (f fakeVerifier) Verify(_, _, _ string) bool { return f.ok }

func newTestEngine(t *testing.T, balance int64) (*Engine, uuid.UUID, *fakeWallets, *fakeEntries, *fakeOutbox) {
	t.Helper()
	wallets := newFakeWallets()
	entries := newFakeEntries()
	outbox := &fakeOutbox{}
	userID := uuid.New()
	require.NoError(t, wallets.Create(context.Background(), nil, &domain.Wallet{
		UserID:   userID,
		Balances: domain.Balances{Balance: balance},
	}))
	return NewEngine(wallets, entries, outbox, fakeVerifier{ok: true}), userID, wallets, entries, outbox
}

// --- Credit ---

func TestExecuteCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits balance and posts entry", func(t *testing.T) {
		engine, userID, _, _, outbox := newTestEngine(t, 10000)
		gameID := uuid.New()

		result, err := engine.ExecuteCredit(ctx, nil, domain.CreditParams{
			UserID: userID,
			Kind:   domain.EntryGameWinning,
			Amount: 18000,
			GameID: &gameID,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(28000), result.Wallet.Balance)
		assert.Equal(t, int64(28000), result.Entry.BalanceAfter)
		assert.Equal(t, domain.StatusCompleted, result.Entry.Status)
		assert.False(t, result.Idempotent)
		assert.Len(t, outbox.drafts, 1)
	})

	t.Run("duplicate game winning is idempotent", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)
		gameID := uuid.New()
		params := domain.CreditParams{
			UserID: userID,
			Kind:   domain.EntryGameWinning,
			Amount: 18000,
			GameID: &gameID,
		}

		first, err := engine.ExecuteCredit(ctx, nil, params)
		require.NoError(t, err)

		second, err := engine.ExecuteCredit(ctx, nil, params)
		require.NoError(t, err)
		assert.True(t, second.Idempotent)
		assert.Equal(t, first.Entry.ID, second.Entry.ID)
		assert.Equal(t, int64(18000), second.Wallet.Balance)
	})

	t.Run("rejects debit kind", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)
		_, err := engine.ExecuteCredit(ctx, nil, domain.CreditParams{
			UserID: userID,
			Kind:   domain.EntryGameEntry,
			Amount: 100,
		})
		require.Error(t, err)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)
		_, err := engine.ExecuteCredit(ctx, nil, domain.CreditParams{
			UserID: userID,
			Kind:   domain.EntryRefund,
			Amount: 0,
		})
		require.Error(t, err)
	})
}

// --- Debit ---

func TestExecuteDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("debits balance", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 10000)
		gameID := uuid.New()

		result, err := engine.ExecuteDebit(ctx, nil, domain.DebitParams{
			UserID: userID,
			Kind:   domain.EntryGameEntry,
			Amount: 5000,
			GameID: &gameID,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), result.Wallet.Balance)
		assert.Equal(t, int64(-5000), result.Entry.SignedAmount())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 4999)
		_, err := engine.ExecuteDebit(ctx, nil, domain.DebitParams{
			UserID: userID,
			Kind:   domain.EntryGameEntry,
			Amount: 5000,
		})
		require.Error(t, err)
		appErr, ok := err.(*domain.AppError)
		require.True(t, ok)
		assert.Equal(t, "INSUFFICIENT_BALANCE", appErr.Code)
	})

	t.Run("reserved funds are not spendable", func(t *testing.T) {
		engine, userID, wallets, _, _ := newTestEngine(t, 10000)
		wallets.wallets[userID].Balance = 1000
		wallets.wallets[userID].ReservedBalance = 9000

		_, err := engine.ExecuteDebit(ctx, nil, domain.DebitParams{
			UserID: userID,
			Kind:   domain.EntryGameEntry,
			Amount: 5000,
		})
		require.Error(t, err)
	})
}

// --- Deposit ---

func TestDepositLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve then confirm credits balance", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)

		reserved, err := engine.ExecuteReserveDeposit(ctx, nil, domain.ReserveDepositParams{
			UserID: userID,
			Amount: 50000,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, reserved.Entry.Status)
		assert.Equal(t, int64(0), reserved.Wallet.Balance)

		confirmed, err := engine.ExecuteConfirmDeposit(ctx, nil, domain.ConfirmDepositParams{
			PendingID: reserved.Entry.ID,
			OrderID:   "order_1",
			PaymentID: "pay_1",
			Signature: "sig",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, confirmed.Entry.Status)
		assert.Equal(t, int64(50000), confirmed.Wallet.Balance)
		require.NotNil(t, confirmed.Entry.Receipt)
		assert.Equal(t, "pay_1", *confirmed.Entry.Receipt)
	})

	t.Run("replayed webhook is idempotent", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)

		reserved, err := engine.ExecuteReserveDeposit(ctx, nil, domain.ReserveDepositParams{
			UserID: userID,
			Amount: 50000,
		})
		require.NoError(t, err)

		params := domain.ConfirmDepositParams{
			PendingID: reserved.Entry.ID,
			OrderID:   "order_1",
			PaymentID: "pay_1",
			Signature: "sig",
		}
		_, err = engine.ExecuteConfirmDeposit(ctx, nil, params)
		require.NoError(t, err)

		second, err := engine.ExecuteConfirmDeposit(ctx, nil, params)
		require.NoError(t, err)
		assert.True(t, second.Idempotent)
		assert.Equal(t, int64(50000), second.Wallet.Balance)
	})

	t.Run("bad signature is rejected before any lookup", func(t *testing.T) {
		wallets := newFakeWallets()
		entries := newFakeEntries()
		engine := NewEngine(wallets, entries, &fakeOutbox{}, fakeVerifier{ok: false})

		_, err := engine.ExecuteConfirmDeposit(ctx, nil, domain.ConfirmDepositParams{
			PendingID: uuid.New(),
			OrderID:   "order_1",
			PaymentID: "pay_1",
			Signature: "forged",
		})
		require.Error(t, err)
		appErr, ok := err.(*domain.AppError)
		require.True(t, ok)
		assert.Equal(t, "SIGNATURE_INVALID", appErr.Code)
	})

	t.Run("failed deposit moves no funds", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 0)

		reserved, err := engine.ExecuteReserveDeposit(ctx, nil, domain.ReserveDepositParams{
			UserID: userID,
			Amount: 50000,
		})
		require.NoError(t, err)

		failed, err := engine.ExecuteFailDeposit(ctx, nil, reserved.Entry.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, failed.Entry.Status)
		assert.Equal(t, int64(0), failed.Wallet.Balance)
	})
}

// --- Withdrawal ---

func TestWithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("request holds funds in reserved", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 100000)

		result, err := engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{
			UserID: userID,
			Amount: 40000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(60000), result.Wallet.Balance)
		assert.Equal(t, int64(40000), result.Wallet.ReservedBalance)
		assert.Equal(t, domain.StatusPending, result.Entry.Status)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 1000)
		_, err := engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{
			UserID: userID,
			Amount: 40000,
		})
		require.Error(t, err)
	})

	t.Run("complete releases the hold", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 100000)

		requested, err := engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{
			UserID: userID,
			Amount: 40000,
		})
		require.NoError(t, err)

		completed, err := engine.ExecuteCompleteWithdrawal(ctx, nil, requested.Entry.ID, "payout_1")
		require.NoError(t, err)
		assert.Equal(t, int64(60000), completed.Wallet.Balance)
		assert.Equal(t, int64(0), completed.Wallet.ReservedBalance)
		assert.Equal(t, domain.StatusCompleted, completed.Entry.Status)
	})

	t.Run("fail restores the hold to balance", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 100000)

		requested, err := engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{
			UserID: userID,
			Amount: 40000,
		})
		require.NoError(t, err)

		failed, err := engine.ExecuteFailWithdrawal(ctx, nil, requested.Entry.ID, domain.StatusFailed)
		require.NoError(t, err)
		assert.Equal(t, int64(100000), failed.Wallet.Balance)
		assert.Equal(t, int64(0), failed.Wallet.ReservedBalance)
	})

	t.Run("double complete is rejected", func(t *testing.T) {
		engine, userID, _, _, _ := newTestEngine(t, 100000)

		requested, err := engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{
			UserID: userID,
			Amount: 40000,
		})
		require.NoError(t, err)

		_, err = engine.ExecuteCompleteWithdrawal(ctx, nil, requested.Entry.ID, "payout_1")
		require.NoError(t, err)

		_, err = engine.ExecuteCompleteWithdrawal(ctx, nil, requested.Entry.ID, "payout_1")
		require.Error(t, err)
	})
}

// --- Invariant ---

func TestVerifyInvariant(t *testing.T) {
	ctx := context.Background()
	engine, userID, _, _, _ := newTestEngine(t, 0)

	// Deposit 100000, enter a game for 10000, win 18000, hold 50000 for withdrawal.
	reserved, err := engine.ExecuteReserveDeposit(ctx, nil, domain.ReserveDepositParams{UserID: userID, Amount: 100000})
	require.NoError(t, err)
	_, err = engine.ExecuteConfirmDeposit(ctx, nil, domain.ConfirmDepositParams{
		PendingID: reserved.Entry.ID, OrderID: "o1", PaymentID: "p1", Signature: "s",
	})
	require.NoError(t, err)

	gameID := uuid.New()
	_, err = engine.ExecuteDebit(ctx, nil, domain.DebitParams{UserID: userID, Kind: domain.EntryGameEntry, Amount: 10000, GameID: &gameID})
	require.NoError(t, err)
	_, err = engine.ExecuteCredit(ctx, nil, domain.CreditParams{UserID: userID, Kind: domain.EntryGameWinning, Amount: 18000, GameID: &gameID})
	require.NoError(t, err)
	_, err = engine.ExecuteRequestWithdrawal(ctx, nil, domain.RequestWithdrawalParams{UserID: userID, Amount: 50000})
	require.NoError(t, err)

	// Pending withdrawal is a hold, not a completed debit, so the books balance.
	diff, err := engine.VerifyInvariant(ctx, nil, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), diff)
}
