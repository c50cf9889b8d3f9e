package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrPtr(t *testing.T) {
	t.Run("non-empty string", func(t *testing.T) {
		p := strPtr("receipt_1")
		require.NotNil(t, p)
		assert.Equal(t, "receipt_1", *p)
	})

	t.Run("empty string returns nil", func(t *testing.T) {
		assert.Nil(t, strPtr(""))
	})
}

func TestEnsureJSON(t *testing.T) {
	t.Run("nil returns empty object", func(t *testing.T) {
		assert.Equal(t, json.RawMessage(`{}`), ensureJSON(nil))
	})

	t.Run("non-nil passthrough", func(t *testing.T) {
		data := json.RawMessage(`{"key":"value"}`)
		assert.Equal(t, data, ensureJSON(data))
	})
}
