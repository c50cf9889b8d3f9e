//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/khelzone/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_NewUserZeros(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, _ := env.SeedUser("+919900000001")

	resp := env.AuthGET("/wallet/balance", token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var bal struct {
		Balance         int64  `json:"balance"`
		ReservedBalance int64  `json:"reserved_balance"`
		Currency        string `json:"currency"`
	}
	testutil.DecodeJSON(t, resp, &bal)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(0), bal.ReservedBalance)
	assert.Equal(t, "INR", bal.Currency)
}

func TestBalance_AfterDeposit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919900000002")

	env.DirectDeposit(userID, 250000)

	resp := env.AuthGET("/wallet/balance", token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var bal struct {
		Balance int64 `json:"balance"`
	}
	testutil.DecodeJSON(t, resp, &bal)
	assert.Equal(t, int64(250000), bal.Balance)
}

func TestBalance_RequiresAuth(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/wallet/balance")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransactions_EmptyForNewUser(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, _ := env.SeedUser("+919900000003")

	resp := env.AuthGET("/wallet/transactions", token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var list struct {
		Transactions []struct {
			Kind string `json:"kind"`
		} `json:"transactions"`
		NextCursor *string `json:"next_cursor"`
	}
	testutil.DecodeJSON(t, resp, &list)
	assert.Empty(t, list.Transactions)
	assert.Nil(t, list.NextCursor)
}

func TestTransactions_CursorPagination(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.SeedUser("+919900000004")

	for i := 0; i < 3; i++ {
		env.DirectDeposit(userID, 10000)
	}

	resp := env.AuthGET("/wallet/transactions?limit=2", token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var page1 struct {
		Transactions []struct {
			ID     string `json:"id"`
			Kind   string `json:"kind"`
			Amount int64  `json:"amount"`
		} `json:"transactions"`
		NextCursor *string `json:"next_cursor"`
	}
	testutil.DecodeJSON(t, resp, &page1)
	require.Len(t, page1.Transactions, 2)
	require.NotNil(t, page1.NextCursor)
	assert.Equal(t, "DEPOSIT", page1.Transactions[0].Kind)

	resp = env.AuthGET(fmt.Sprintf("/wallet/transactions?limit=2&cursor=%s", *page1.NextCursor), token)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var page2 struct {
		Transactions []struct {
			ID string `json:"id"`
		} `json:"transactions"`
		NextCursor *string `json:"next_cursor"`
	}
	testutil.DecodeJSON(t, resp, &page2)
	require.Len(t, page2.Transactions, 1)
	assert.Nil(t, page2.NextCursor)
	assert.NotEqual(t, page1.Transactions[0].ID, page2.Transactions[0].ID)
	assert.NotEqual(t, page1.Transactions[1].ID, page2.Transactions[0].ID)
}

func TestTransactions_IsolatedPerUser(t *testing.T) {
	env := testutil.NewTestEnv(t)
	tokenA, userA := env.SeedUser("+919900000005")
	_, userB := env.SeedUser("+919900000006")

	env.DirectDeposit(userA, 10000)
	env.DirectDeposit(userB, 99999)

	resp := env.AuthGET("/wallet/transactions", tokenA)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var list struct {
		Transactions []struct {
			Amount int64 `json:"amount"`
		} `json:"transactions"`
	}
	testutil.DecodeJSON(t, resp, &list)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, int64(10000), list.Transactions[0].Amount)
}
