//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertBalance queries the wallets table and asserts the user's balances.
func AssertBalance(t *testing.T, env *TestEnv, userID uuid.UUID, balance, reserved int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var bal, res int64
	err := env.Pool.QueryRow(ctx,
		"SELECT balance, reserved_balance FROM wallets WHERE user_id = $1",
		userID).Scan(&bal, &res)
	if err != nil {
		t.Fatalf("AssertBalance: query: %v", err)
	}
	if bal != balance {
		t.Errorf("balance: expected %d, got %d", balance, bal)
	}
	if res != reserved {
		t.Errorf("reserved_balance: expected %d, got %d", reserved, res)
	}
}

// CountLedgerEntries returns the number of ledger entries for a user,
// optionally filtered by status. Empty status counts all.
func CountLedgerEntries(t *testing.T, env *TestEnv, userID uuid.UUID, status string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	var err error
	if status == "" {
		err = env.Pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1", userID).Scan(&count)
	} else {
		err = env.Pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1 AND status = $2",
			userID, status).Scan(&count)
	}
	if err != nil {
		t.Fatalf("CountLedgerEntries: %v", err)
	}
	return count
}

// CountOutboxEvents returns the number of outbox events for an aggregate.
func CountOutboxEvents(t *testing.T, env *TestEnv, aggregateID string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE "aggregateId" = $1`, aggregateID).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}
