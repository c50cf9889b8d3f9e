//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/khelzone/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type depositSession struct {
	PendingID string `json:"pending_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
}

func initiateDeposit(t *testing.T, env *testutil.TestEnv, token string, amount int64) depositSession {
	t.Helper()
	resp := env.AuthPOST("/payments/deposit", map[string]int64{"amount": amount}, token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var session depositSession
	testutil.DecodeJSON(t, resp, &session)
	require.NotEmpty(t, session.PendingID)
	require.NotEmpty(t, session.OrderID)
	return session
}

func confirmWebhook(env *testutil.TestEnv, session depositSession, paymentID, status string) *http.Response {
	body, _ := json.Marshal(map[string]string{
		"pending_id": session.PendingID,
		"order_id":   session.OrderID,
		"payment_id": paymentID,
		"signature":  testutil.GatewaySignature(session.OrderID, paymentID),
		"status":     status,
	})
	return env.RawPOST("/payments/webhook", body, map[string]string{"Content-Type": "application/json"})
}

func TestDeposit_CreatesPendingEntry(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000001")

	session := initiateDeposit(t, env, token, 50000)
	assert.Equal(t, int64(50000), session.Amount)

	// No funds move until the webhook confirms.
	testutil.AssertBalance(t, env, userID, 0, 0)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID, "PENDING"))
}

func TestDeposit_BelowMinimumRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000002")

	resp := env.AuthPOST("/payments/deposit", map[string]int64{"amount": 500}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, "VALIDATION_ERROR")

	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, userID, ""))
}

func TestWebhook_ConfirmsDeposit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000003")

	session := initiateDeposit(t, env, token, 50000)

	resp := confirmWebhook(env, session, "pay_abc123", "captured")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.AssertBalance(t, env, userID, 50000, 0)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID, "COMPLETED"))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, userID, "PENDING"))
	assert.GreaterOrEqual(t, testutil.CountOutboxEvents(t, env, userID.String()), 1)
}

func TestWebhook_ReplayIsIdempotent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000004")

	session := initiateDeposit(t, env, token, 50000)

	resp := confirmWebhook(env, session, "pay_replay", "captured")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = confirmWebhook(env, session, "pay_replay", "captured")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Credited exactly once.
	testutil.AssertBalance(t, env, userID, 50000, 0)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID, "COMPLETED"))
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000005")

	session := initiateDeposit(t, env, token, 50000)

	body, _ := json.Marshal(map[string]string{
		"pending_id": session.PendingID,
		"order_id":   session.OrderID,
		"payment_id": "pay_evil",
		"signature":  "not-a-valid-signature",
		"status":     "captured",
	})
	resp := env.RawPOST("/payments/webhook", body, map[string]string{"Content-Type": "application/json"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The forged callback burns the pending entry; no funds move.
	testutil.AssertBalance(t, env, userID, 0, 0)
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, userID, "PENDING"))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID, "FAILED"))
}

func TestWebhook_FailedPaymentVoidsPending(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000006")

	session := initiateDeposit(t, env, token, 50000)

	resp := confirmWebhook(env, session, "pay_fail", "failed")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.AssertBalance(t, env, userID, 0, 0)
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, userID, "PENDING"))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env, userID, "COMPLETED"))
}

func TestWithdrawal_MovesFundsToHold(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000007")
	env.DirectDeposit(userID, 100000)

	resp := env.AuthPOST("/payments/withdraw", map[string]interface{}{
		"amount":       40000,
		"bank_details": map[string]string{"ifsc": "HDFC0001234", "account": "XXXX1234"},
	}, token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var result struct {
		Status string `json:"status"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "pending", result.Status)

	testutil.AssertBalance(t, env, userID, 60000, 40000)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID, "PENDING"))
}

func TestWithdrawal_InsufficientBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000008")
	env.DirectDeposit(userID, 20000)

	resp := env.AuthPOST("/payments/withdraw", map[string]interface{}{"amount": 50000}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, "INSUFFICIENT_BALANCE")

	testutil.AssertBalance(t, env, userID, 20000, 0)
}

func TestWithdrawal_BelowMinimumRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919910000009")
	env.DirectDeposit(userID, 100000)

	resp := env.AuthPOST("/payments/withdraw", map[string]interface{}{"amount": 5000}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, "VALIDATION_ERROR")

	testutil.AssertBalance(t, env, userID, 100000, 0)
}
