package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Gateway wraps the payment gateway integration: order creation for deposits
// and receipt signature verification for webhooks.
type Gateway struct {
	secret string
}

// NewGateway creates a gateway client with the webhook signing secret.
func NewGateway(secret string) *Gateway {
	return &Gateway{secret: secret}
}

// Order is the reference handed to the client so it can drive the
// gateway checkout flow.
type Order struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

// CreateOrder issues a gateway order id for a deposit attempt.
func (g *Gateway) CreateOrder(amount int64) (*Order, error) {
	if g.secret == "" {
		return nil, fmt.Errorf("gateway secret not configured")
	}
	return &Order{
		OrderID: "order_" + uuid.NewString(),
		Amount:  amount,
	}, nil
}

// Verify checks the webhook signature: HMAC-SHA256 over "orderID|paymentID"
// keyed with the gateway secret, hex encoded. Comparison is constant time.
func (g *Gateway) Verify(orderID, paymentID, signature string) bool {
	if g.secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
