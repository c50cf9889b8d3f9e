package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/khelzone/platform/internal/service"
)

// WebhookHandler handles payment gateway callbacks.
type WebhookHandler struct {
	paymentSvc *service.PaymentService
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(paymentSvc *service.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc, logger: logger}
}

// HandleGatewayWebhook handles POST /payments/webhook.
// IMPORTANT: This handler must receive the raw request body (no JSON middleware parsing).
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.paymentSvc.HandleGatewayWebhook(r.Context(), body); err != nil {
		h.logger.Error("process gateway webhook", "error", err)
		RespondError(w, err)
		return
	}

	// Gateway expects 200 OK, including on idempotent replays.
	w.WriteHeader(http.StatusOK)
}
