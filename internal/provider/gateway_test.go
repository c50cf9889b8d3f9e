package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGatewayVerify(t *testing.T) {
	g := NewGateway("test-secret")

	t.Run("valid signature", func(t *testing.T) {
		sig := sign("test-secret", "order_1", "pay_1")
		assert.True(t, g.Verify("order_1", "pay_1", sig))
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := sign("other-secret", "order_1", "pay_1")
		assert.False(t, g.Verify("order_1", "pay_1", sig))
	})

	t.Run("tampered payment id", func(t *testing.T) {
		sig := sign("test-secret", "order_1", "pay_1")
		assert.False(t, g.Verify("order_1", "pay_2", sig))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, g.Verify("order_1", "pay_1", ""))
	})

	t.Run("unconfigured secret rejects everything", func(t *testing.T) {
		empty := NewGateway("")
		sig := sign("", "order_1", "pay_1")
		assert.False(t, empty.Verify("order_1", "pay_1", sig))
	})
}

func TestGatewayCreateOrder(t *testing.T) {
	t.Run("issues order id", func(t *testing.T) {
		g := NewGateway("test-secret")
		order, err := g.CreateOrder(50000)
		require.NoError(t, err)
		assert.NotEmpty(t, order.OrderID)
		assert.Equal(t, int64(50000), order.Amount)
	})

	t.Run("unconfigured secret fails", func(t *testing.T) {
		g := NewGateway("")
		_, err := g.CreateOrder(50000)
		require.Error(t, err)
	})
}
