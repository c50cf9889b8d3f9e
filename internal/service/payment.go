package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/ledger"
	"github.com/khelzone/platform/internal/policy"
	"github.com/khelzone/platform/internal/provider"
)

// TxBeginner opens database transactions (satisfied by pgxpool.Pool).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PaymentService orchestrates deposits and withdrawals between the gateway
// and the ledger engine.
type PaymentService struct {
	db      TxBeginner
	gateway *provider.Gateway
	engine  *ledger.Engine
	limits  policy.LimitPolicy
	logger  *slog.Logger
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(db TxBeginner, gateway *provider.Gateway, engine *ledger.Engine, cfg *infra.Config, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		db:      db,
		gateway: gateway,
		engine:  engine,
		limits: policy.LimitPolicy{
			DepositMin:    cfg.DepositMin,
			DepositMax:    cfg.DepositMax,
			WithdrawalMin: cfg.WithdrawalMin,
		},
		logger: logger,
	}
}

// DepositSession is handed to the client so it can drive the gateway
// checkout flow. PendingID identifies the reserved ledger entry.
type DepositSession struct {
	PendingID string `json:"pending_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
}

// InitiateDeposit reserves a pending deposit entry and creates a gateway
// order. No funds move until the signed webhook confirms the payment.
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64) (*DepositSession, error) {
	if eval := policy.EvaluateDeposit(s.limits, amount); !eval.Allowed {
		return nil, domain.ErrValidation("deposit amount out of range: " + eval.BreachedLimit)
	}

	order, err := s.gateway.CreateOrder(amount)
	if err != nil {
		return nil, domain.ErrInternal("create gateway order", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	metadata, _ := json.Marshal(map[string]string{"order_id": order.OrderID})
	result, err := s.engine.ExecuteReserveDeposit(ctx, tx, domain.ReserveDepositParams{
		UserID:   userID,
		Amount:   amount,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("deposit initiated",
		"userId", userID, "amount", amount, "orderId", order.OrderID, "pendingId", result.Entry.ID)
	return &DepositSession{
		PendingID: result.Entry.ID.String(),
		OrderID:   order.OrderID,
		Amount:    amount,
	}, nil
}

// gatewayWebhook is the signed confirmation body posted by the gateway.
type gatewayWebhook struct {
	PendingID string `json:"pending_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

// HandleGatewayWebhook settles a pending deposit from a gateway callback.
// The signature covers "orderID|paymentID"; replays are idempotent on the
// payment receipt.
func (s *PaymentService) HandleGatewayWebhook(ctx context.Context, payload []byte) error {
	var hook gatewayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return domain.ErrValidation("malformed webhook body")
	}
	pendingID, err := uuid.Parse(hook.PendingID)
	if err != nil {
		return domain.ErrValidation("invalid pending_id")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if hook.Status == "failed" {
		if _, err := s.engine.ExecuteFailDeposit(ctx, tx, pendingID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.ErrInternal("commit tx", err)
		}
		s.logger.Info("deposit failed at gateway", "pendingId", pendingID)
		return nil
	}

	result, err := s.engine.ExecuteConfirmDeposit(ctx, tx, domain.ConfirmDepositParams{
		PendingID: pendingID,
		OrderID:   hook.OrderID,
		PaymentID: hook.PaymentID,
		Signature: hook.Signature,
	})
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) && appErr.Code == "SIGNATURE_INVALID" {
			// Forged or corrupted callbacks burn the pending entry so it
			// cannot be replayed with a fixed signature later.
			s.failPendingDeposit(ctx, pendingID)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("deposit confirmed",
		"pendingId", pendingID, "paymentId", hook.PaymentID, "idempotent", result.Idempotent)
	return nil
}

// failPendingDeposit voids a pending deposit in its own transaction, so the
// mark survives the rollback of the rejected confirmation.
func (s *PaymentService) failPendingDeposit(ctx context.Context, pendingID uuid.UUID) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("fail pending deposit: begin tx", "pendingId", pendingID, "error", err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := s.engine.ExecuteFailDeposit(ctx, tx, pendingID); err != nil {
		s.logger.Error("fail pending deposit", "pendingId", pendingID, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("fail pending deposit: commit", "pendingId", pendingID, "error", err)
	}
}

// RequestWithdrawal moves funds into the withdrawal hold and records a
// pending entry for the payout operator.
func (s *PaymentService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, bankDetails json.RawMessage) error {
	if eval := policy.EvaluateWithdrawal(s.limits, amount); !eval.Allowed {
		return domain.ErrValidation("withdrawal below minimum")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteRequestWithdrawal(ctx, tx, domain.RequestWithdrawalParams{
		UserID:      userID,
		Amount:      amount,
		BankDetails: bankDetails,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("withdrawal requested",
		"userId", userID, "amount", amount, "pendingId", result.Entry.ID)
	return nil
}

// CompleteWithdrawal releases the hold after the payout operator confirms the
// bank transfer went through.
func (s *PaymentService) CompleteWithdrawal(ctx context.Context, pendingID uuid.UUID, receipt string) error {
	if receipt == "" {
		return domain.ErrValidation("payout receipt required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteCompleteWithdrawal(ctx, tx, pendingID, receipt)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("withdrawal completed",
		"pendingId", pendingID, "userId", result.Entry.UserID, "receipt", receipt)
	return nil
}

// FailWithdrawal returns held funds to the user's available balance. The
// entry moves to FAILED (payout rejected) or CANCELLED (user request).
func (s *PaymentService) FailWithdrawal(ctx context.Context, pendingID uuid.UUID, cancelled bool) error {
	status := domain.StatusFailed
	if cancelled {
		status = domain.StatusCancelled
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteFailWithdrawal(ctx, tx, pendingID, status)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("withdrawal reversed",
		"pendingId", pendingID, "userId", result.Entry.UserID, "status", status)
	return nil
}
