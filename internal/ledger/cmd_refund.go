package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
)

// ExecuteRefund returns an entry fee to a participant of a cancelled room.
// Delegates to ExecuteCredit, so it is idempotent per (game, user).
func (e *Engine) ExecuteRefund(ctx context.Context, tx pgx.Tx, params domain.RefundParams) (*domain.CommandResult, error) {
	meta, _ := json.Marshal(map[string]string{"reason": params.Reason})
	result, err := e.ExecuteCredit(ctx, tx, domain.CreditParams{
		UserID:   params.UserID,
		Kind:     domain.EntryRefund,
		Amount:   params.Amount,
		Memo:     "entry fee refund",
		GameID:   &params.GameID,
		Metadata: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}
	return result, nil
}
