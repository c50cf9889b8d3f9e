package handler

import (
	"encoding/json"
	"net/http"

	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/service"
)

// PaymentHandler handles deposit and withdrawal endpoints.
type PaymentHandler struct {
	paymentSvc *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

type initiateDepositRequest struct {
	Amount int64 `json:"amount"`
}

// InitiateDeposit handles POST /payments/deposit.
func (h *PaymentHandler) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req initiateDepositRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code": "VALIDATION_ERROR", "message": "invalid request body",
		})
		return
	}

	if req.Amount <= 0 {
		RespondError(w, domain.ErrValidation("amount must be positive"))
		return
	}

	session, err := h.paymentSvc.InitiateDeposit(r.Context(), userID, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, session)
}

type requestWithdrawalRequest struct {
	Amount      int64           `json:"amount"`
	BankDetails json.RawMessage `json:"bank_details"`
}

// RequestWithdrawal handles POST /payments/withdraw.
func (h *PaymentHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req requestWithdrawalRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code": "VALIDATION_ERROR", "message": "invalid request body",
		})
		return
	}

	if req.Amount <= 0 {
		RespondError(w, domain.ErrValidation("amount must be positive"))
		return
	}

	if err := h.paymentSvc.RequestWithdrawal(r.Context(), userID, req.Amount, req.BankDetails); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}
