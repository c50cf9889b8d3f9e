//go:build integration

package testutil

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/auth"
)

// SeedUser inserts a verified user with an empty wallet and returns a player
// token plus the user ID.
func (env *TestEnv) SeedUser(phone string) (token string, userID uuid.UUID) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID = uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO users (id, phone, name, verified, created_at)
		VALUES ($1, $2, $3, true, now())`, userID, phone, "Test User")
	if err != nil {
		env.t.Fatalf("SeedUser: insert user: %v", err)
	}

	_, err = env.Pool.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, reserved_balance)
		VALUES ($1, 0, 0)`, userID)
	if err != nil {
		env.t.Fatalf("SeedUser: insert wallet: %v", err)
	}

	token, err = env.JWTMgr.GenerateToken(auth.RealmPlayer, userID, phone, "")
	if err != nil {
		env.t.Fatalf("SeedUser: mint token: %v", err)
	}
	return token, userID
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	req, err := http.NewRequest("POST", env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("POST %s: new request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("GET", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: new request: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// AuthPOST performs an authenticated POST request.
func (env *TestEnv) AuthPOST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.POST(path, body, token)
}

// RawPOST posts a raw body with custom headers. Used for webhook payloads
// that must bypass the JSON middleware.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("POST", env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("RawPOST %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

// DirectDeposit credits a user's wallet directly, bypassing the gateway.
// Writes the completed ledger entry and outbox event the real flow would.
func (env *TestEnv) DirectDeposit(userID uuid.UUID, amount int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt := fmt.Sprintf("test_pay_%s", uuid.New().String()[:8])

	tx, err := env.Pool.Begin(ctx)
	if err != nil {
		env.t.Fatalf("DirectDeposit: begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	var balAfter, reservedAfter int64
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2, updated_at = now()
		WHERE user_id = $1
		RETURNING balance, reserved_balance`, userID, amount).Scan(&balAfter, &reservedAfter)
	if err != nil {
		env.t.Fatalf("DirectDeposit: update balance: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries
		  (user_id, kind, status, amount, balance_after, reserved_after, receipt, memo, metadata)
		VALUES ($1, 'DEPOSIT', 'COMPLETED', $2, $3, $4, $5, 'test deposit', '{}')`,
		userID, amount, balAfter, reservedAfter, receipt)
	if err != nil {
		env.t.Fatalf("DirectDeposit: insert entry: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox ("eventId", "aggregateType", "aggregateId", "eventType",
			"partitionKey", headers, payload, "occurredAt")
		VALUES ($1, 'wallet', $2, 'arena.wallet.entry.posted', $2, '{}', '{}', now())`,
		uuid.New().String(), userID.String())
	if err != nil {
		env.t.Fatalf("DirectDeposit: insert outbox: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		env.t.Fatalf("DirectDeposit: commit: %v", err)
	}
}

// AdminToken mints an admin-realm token with the given role.
func (env *TestEnv) AdminToken(role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, uuid.New(), "", role)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return token
}

// GatewaySignature computes the webhook signature the gateway would send.
func GatewaySignature(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(TestGatewaySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
