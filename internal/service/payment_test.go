package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/ledger"
	"github.com/khelzone/platform/internal/provider"
	"github.com/khelzone/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGatewaySecret = "svc-test-secret"

// --- In-memory fakes ---

type fakeTx struct{ pgx.Tx }

func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeBeginner struct{}

func (f *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

type fakeWallets struct {
	repository.WalletRepository
	wallets map[uuid.UUID]*domain.Wallet
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

func (f *fakeWallets) UpdateBalances(_ context.Context, _ pgx.Tx, userID uuid.UUID, delta domain.BalanceUpdate) (*domain.Wallet, error) {
	w := f.wallets[userID]
	w.Balance += delta.Balance
	w.ReservedBalance += delta.Reserved
	w.UpdatedAt = time.Now()
	cp := *w
	return &cp, nil
}

type fakeEntries struct {
	repository.LedgerRepository
	entries map[uuid.UUID]*domain.LedgerEntry
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

type fakeOutbox struct {
	repository.OutboxRepository
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

// --- Fixture ---

type paymentFixture struct {
	svc     *PaymentService
	wallets *fakeWallets
	entries *fakeEntries
	userID  uuid.UUID
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	userID := uuid.New()
	wallets := &fakeWallets{wallets: map[uuid.UUID]*domain.Wallet{
		userID: {UserID: userID, Balances: domain.Balances{Balance: 100000}},
	}}
	entries := &fakeEntries{entries: make(map[uuid.UUID]*domain.LedgerEntry)}
	gateway := provider.NewGateway(testGatewaySecret)
	engine := ledger.NewEngine(wallets, entries, &fakeOutbox{}, gateway)

	cfg := &infra.Config{
		DepositMin:    1000,
		DepositMax:    5000000,
		WithdrawalMin: 10000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewPaymentService(&fakeBeginner{}, gateway, engine, cfg, logger)

	return &paymentFixture{svc: svc, wallets: wallets, entries: entries, userID: userID}
}

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testGatewaySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, session *DepositSession, paymentID, signature, status string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"pending_id": session.PendingID,
		"order_id":   session.OrderID,
		"payment_id": paymentID,
		"signature":  signature,
		"status":     status,
	})
	require.NoError(t, err)
	return body
}

// --- Tests ---

func TestInitiateDeposit_CreatesPendingEntry(t *testing.T) {
	f := newPaymentFixture(t)

	session, err := f.svc.InitiateDeposit(context.Background(), f.userID, 50000)
	require.NoError(t, err)
	assert.NotEmpty(t, session.OrderID)
	assert.Equal(t, int64(50000), session.Amount)

	pendingID, err := uuid.Parse(session.PendingID)
	require.NoError(t, err)

	entry := f.entries.entries[pendingID]
	require.NotNil(t, entry)
	assert.Equal(t, domain.EntryDeposit, entry.Kind)
	assert.Equal(t, domain.StatusPending, entry.Status)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, session.OrderID, meta["order_id"])

	// No funds move before confirmation.
	assert.Equal(t, int64(100000), f.wallets.wallets[f.userID].Balance)
}

func TestInitiateDeposit_OutOfRange(t *testing.T) {
	f := newPaymentFixture(t)

	for _, amount := range []int64{500, 5000001} {
		_, err := f.svc.InitiateDeposit(context.Background(), f.userID, amount)
		var appErr *domain.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	}
	assert.Empty(t, f.entries.entries)
}

func TestHandleGatewayWebhook_ConfirmsDeposit(t *testing.T) {
	f := newPaymentFixture(t)

	session, err := f.svc.InitiateDeposit(context.Background(), f.userID, 50000)
	require.NoError(t, err)

	body := webhookBody(t, session, "pay_ok", sign(session.OrderID, "pay_ok"), "captured")
	require.NoError(t, f.svc.HandleGatewayWebhook(context.Background(), body))

	assert.Equal(t, int64(150000), f.wallets.wallets[f.userID].Balance)

	pendingID, _ := uuid.Parse(session.PendingID)
	entry := f.entries.entries[pendingID]
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	require.NotNil(t, entry.Receipt)
	assert.Equal(t, "pay_ok", *entry.Receipt)
}

func TestHandleGatewayWebhook_ReplayIdempotent(t *testing.T) {
	f := newPaymentFixture(t)

	session, err := f.svc.InitiateDeposit(context.Background(), f.userID, 50000)
	require.NoError(t, err)

	body := webhookBody(t, session, "pay_replay", sign(session.OrderID, "pay_replay"), "captured")
	require.NoError(t, f.svc.HandleGatewayWebhook(context.Background(), body))
	require.NoError(t, f.svc.HandleGatewayWebhook(context.Background(), body))

	// Credited exactly once.
	assert.Equal(t, int64(150000), f.wallets.wallets[f.userID].Balance)
}

func TestHandleGatewayWebhook_BadSignature(t *testing.T) {
	f := newPaymentFixture(t)

	session, err := f.svc.InitiateDeposit(context.Background(), f.userID, 50000)
	require.NoError(t, err)

	body := webhookBody(t, session, "pay_evil", "bogus-signature", "captured")
	err = f.svc.HandleGatewayWebhook(context.Background(), body)

	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SIGNATURE_INVALID", appErr.Code)
	assert.Equal(t, int64(100000), f.wallets.wallets[f.userID].Balance)

	// The pending entry is burned so the callback cannot be retried.
	pendingID, _ := uuid.Parse(session.PendingID)
	assert.Equal(t, domain.StatusFailed, f.entries.entries[pendingID].Status)
}

func TestHandleGatewayWebhook_FailedPayment(t *testing.T) {
	f := newPaymentFixture(t)

	session, err := f.svc.InitiateDeposit(context.Background(), f.userID, 50000)
	require.NoError(t, err)

	body := webhookBody(t, session, "pay_fail", sign(session.OrderID, "pay_fail"), "failed")
	require.NoError(t, f.svc.HandleGatewayWebhook(context.Background(), body))

	pendingID, _ := uuid.Parse(session.PendingID)
	assert.Equal(t, domain.StatusFailed, f.entries.entries[pendingID].Status)
	assert.Equal(t, int64(100000), f.wallets.wallets[f.userID].Balance)
}

func TestHandleGatewayWebhook_MalformedBody(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.HandleGatewayWebhook(context.Background(), []byte("{not json"))
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestRequestWithdrawal_MovesFundsToHold(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.RequestWithdrawal(context.Background(), f.userID, 40000,
		json.RawMessage(`{"ifsc":"HDFC0001234"}`))
	require.NoError(t, err)

	w := f.wallets.wallets[f.userID]
	assert.Equal(t, int64(60000), w.Balance)
	assert.Equal(t, int64(40000), w.ReservedBalance)
}

func TestRequestWithdrawal_BelowMinimum(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.RequestWithdrawal(context.Background(), f.userID, 5000, nil)
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestCompleteWithdrawal_ReleasesHold(t *testing.T) {
	f := newPaymentFixture(t)

	require.NoError(t, f.svc.RequestWithdrawal(context.Background(), f.userID, 40000, nil))
	pendingID := pendingWithdrawalID(t, f)

	require.NoError(t, f.svc.CompleteWithdrawal(context.Background(), pendingID, "payout_001"))

	w := f.wallets.wallets[f.userID]
	assert.Equal(t, int64(60000), w.Balance)
	assert.Equal(t, int64(0), w.ReservedBalance)

	entry := f.entries.entries[pendingID]
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	require.NotNil(t, entry.Receipt)
	assert.Equal(t, "payout_001", *entry.Receipt)
}

func TestCompleteWithdrawal_RequiresReceipt(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.CompleteWithdrawal(context.Background(), uuid.New(), "")
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestFailWithdrawal_RestoresBalance(t *testing.T) {
	f := newPaymentFixture(t)

	require.NoError(t, f.svc.RequestWithdrawal(context.Background(), f.userID, 40000, nil))
	pendingID := pendingWithdrawalID(t, f)

	require.NoError(t, f.svc.FailWithdrawal(context.Background(), pendingID, false))

	w := f.wallets.wallets[f.userID]
	assert.Equal(t, int64(100000), w.Balance)
	assert.Equal(t, int64(0), w.ReservedBalance)
	assert.Equal(t, domain.StatusFailed, f.entries.entries[pendingID].Status)
}

func TestFailWithdrawal_CancelledByUser(t *testing.T) {
	f := newPaymentFixture(t)

	require.NoError(t, f.svc.RequestWithdrawal(context.Background(), f.userID, 40000, nil))
	pendingID := pendingWithdrawalID(t, f)

	require.NoError(t, f.svc.FailWithdrawal(context.Background(), pendingID, true))
	assert.Equal(t, domain.StatusCancelled, f.entries.entries[pendingID].Status)
}

func pendingWithdrawalID(t *testing.T, f *paymentFixture) uuid.UUID {
	t.Helper()
	for id, e := range f.entries.entries {
		if e.Kind == domain.EntryWithdrawal && e.Status == domain.StatusPending {
			return id
		}
	}
	t.Fatal("no pending withdrawal entry")
	return uuid.Nil
}

func TestRequestWithdrawal_InsufficientBalance(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.RequestWithdrawal(context.Background(), f.userID, 200000, nil)
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_BALANCE", appErr.Code)
	assert.Equal(t, int64(100000), f.wallets.wallets[f.userID].Balance)
}
