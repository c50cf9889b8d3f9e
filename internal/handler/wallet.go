package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/auth"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/repository"
)

// WalletDB is the pool surface wallet endpoints need.
type WalletDB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletHandler handles wallet balance and transaction endpoints.
type WalletHandler struct {
	wallets repository.WalletRepository
	entries repository.LedgerRepository
	db      WalletDB
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets repository.WalletRepository, entries repository.LedgerRepository, db WalletDB) *WalletHandler {
	return &WalletHandler{wallets: wallets, entries: entries, db: db}
}

// balanceResponse is the shape of GET /wallet/balance.
type balanceResponse struct {
	Balance         int64  `json:"balance"`
	ReservedBalance int64  `json:"reserved_balance"`
	Currency        string `json:"currency"`
}

// GetBalance handles GET /wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	wallet, err := h.wallets.FindByUser(r.Context(), h.db, userID)
	if err != nil {
		RespondError(w, domain.ErrInternal("find wallet", err))
		return
	}
	if wallet == nil {
		RespondError(w, domain.ErrNotFound("wallet", userID.String()))
		return
	}

	RespondJSON(w, http.StatusOK, balanceResponse{
		Balance:         wallet.Balance,
		ReservedBalance: wallet.ReservedBalance,
		Currency:        "INR",
	})
}

// entryListResponse wraps a list of ledger entries with cursor.
type entryListResponse struct {
	Transactions []domain.LedgerEntry `json:"transactions"`
	NextCursor   *string              `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /wallet/transactions with cursor-based pagination.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	entries, err := h.entries.ListByUser(r.Context(), h.db, userID, cursor, limit+1)
	if err != nil {
		RespondError(w, domain.ErrInternal("list transactions", err))
		return
	}

	resp := entryListResponse{Transactions: entries}
	if len(entries) > limit {
		resp.Transactions = entries[:limit]
		nextID := entries[limit].ID.String()
		resp.NextCursor = &nextID
	}

	RespondJSON(w, http.StatusOK, resp)
}

// userIDFromContext extracts and validates the user UUID from auth context.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized("invalid subject")
	}
	return id, nil
}
