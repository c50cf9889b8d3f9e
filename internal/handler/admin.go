package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/ledger"
	"github.com/khelzone/platform/internal/service"
)

// AdminHandler exposes the payout operator surface: withdrawal settlement and
// the ledger invariant check.
type AdminHandler struct {
	paymentSvc *service.PaymentService
	engine     *ledger.Engine
	db         WalletDB
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(paymentSvc *service.PaymentService, engine *ledger.Engine, db WalletDB) *AdminHandler {
	return &AdminHandler{paymentSvc: paymentSvc, engine: engine, db: db}
}

type completeWithdrawalRequest struct {
	Receipt string `json:"receipt"`
}

// CompleteWithdrawal handles POST /admin/withdrawals/{id}/complete.
func (h *AdminHandler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	pendingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid withdrawal id"))
		return
	}

	var req completeWithdrawalRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	if err := h.paymentSvc.CompleteWithdrawal(r.Context(), pendingID, req.Receipt); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type failWithdrawalRequest struct {
	Cancelled bool `json:"cancelled"`
}

// FailWithdrawal handles POST /admin/withdrawals/{id}/fail.
func (h *AdminHandler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	pendingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid withdrawal id"))
		return
	}

	var req failWithdrawalRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	if err := h.paymentSvc.FailWithdrawal(r.Context(), pendingID, req.Cancelled); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "reversed"})
}

// VerifyInvariant handles GET /admin/wallets/{userId}/invariant. Reports the
// drift between the wallet balances and the completed ledger sums.
func (h *AdminHandler) VerifyInvariant(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid user id"))
		return
	}

	drift, err := h.engine.VerifyInvariant(r.Context(), h.db, userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"drift":    drift,
		"balanced": drift == 0,
	})
}
