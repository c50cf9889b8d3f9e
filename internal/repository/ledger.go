package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
)

type ledgerRepo struct{}

// NewLedgerRepository returns a pgx-backed LedgerRepository.
func NewLedgerRepository() LedgerRepository {
	return &ledgerRepo{}
}

const ledgerColumns = `id, user_id, kind, status, amount, balance_after, reserved_after,
	       game_id, receipt, memo, metadata, created_at`

func (r *ledgerRepo) Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error) {
	meta := params.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO ledger_entries
		  (user_id, kind, status, amount, balance_after, reserved_after, game_id, receipt, memo, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+ledgerColumns,
		params.UserID,
		string(params.Kind),
		string(params.Status),
		infra.Int64ToNumeric(params.Amount),
		infra.Int64ToNumeric(balances.Balance),
		infra.Int64ToNumeric(balances.ReservedBalance),
		params.GameID,
		params.Receipt,
		params.Memo,
		meta,
	)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries WHERE id = $1`, id)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) FindByReceipt(ctx context.Context, db DBTX, receipt string) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries WHERE receipt = $1`, receipt)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) FindByGameAndKind(ctx context.Context, db DBTX, gameID uuid.UUID, kind domain.EntryKind, userID uuid.UUID) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE game_id = $1 AND kind = $2 AND user_id = $3 AND status = 'COMPLETED'`,
		gameID, string(kind), userID)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.EntryStatus, receipt *string) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		UPDATE ledger_entries
		SET status = $2, receipt = COALESCE($3, receipt)
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+ledgerColumns, id, string(status), receipt)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = db.Query(ctx, `
			SELECT `+ledgerColumns+`
			FROM ledger_entries
			WHERE user_id = $1
			  AND (created_at, id) <= ((SELECT created_at, id FROM ledger_entries WHERE id = $2))
			ORDER BY created_at DESC, id DESC
			LIMIT $3`, userID, *cursor, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT `+ledgerColumns+`
			FROM ledger_entries
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

func (r *ledgerRepo) ListByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE game_id = $1
		ORDER BY created_at ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query game entries: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

// CompletedSums powers the ledger-vs-balance invariant check: the available
// plus reserved funds of a wallet must equal credits minus debits.
func (r *ledgerRepo) CompletedSums(ctx context.Context, db DBTX, userID uuid.UUID) (credits, debits int64, err error) {
	var creditNum, debitNum pgtype.Numeric
	row := db.QueryRow(ctx, `
		SELECT
		  COALESCE(SUM(amount) FILTER (WHERE kind IN ('DEPOSIT','GAME_WINNING','REFUND','REFERRAL_BONUS')), 0),
		  COALESCE(SUM(amount) FILTER (WHERE kind IN ('WITHDRAWAL','GAME_ENTRY')), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND status = 'COMPLETED'`, userID)
	if err := row.Scan(&creditNum, &debitNum); err != nil {
		return 0, 0, fmt.Errorf("sum completed entries: %w", err)
	}

	credits, err = infra.NumericToInt64(creditNum)
	if err != nil {
		return 0, 0, fmt.Errorf("convert credit sum: %w", err)
	}
	debits, err = infra.NumericToInt64(debitNum)
	if err != nil {
		return 0, 0, fmt.Errorf("convert debit sum: %w", err)
	}
	return credits, debits, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var amountNum, balNum, reservedNum pgtype.Numeric
	err := row.Scan(
		&e.ID, &e.UserID, &e.Kind, &e.Status,
		&amountNum, &balNum, &reservedNum,
		&e.GameID, &e.Receipt, &e.Memo, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}

	var convErr error
	e.Amount, convErr = infra.NumericToInt64(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount: %w", convErr)
	}
	e.BalanceAfter, convErr = infra.NumericToInt64(balNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_after: %w", convErr)
	}
	e.ReservedAfter, convErr = infra.NumericToInt64(reservedNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert reserved_after: %w", convErr)
	}

	return &e, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amountNum, balNum, reservedNum pgtype.Numeric
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Kind, &e.Status,
			&amountNum, &balNum, &reservedNum,
			&e.GameID, &e.Receipt, &e.Memo, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var convErr error
		e.Amount, convErr = infra.NumericToInt64(amountNum)
		if convErr != nil {
			return nil, convErr
		}
		e.BalanceAfter, convErr = infra.NumericToInt64(balNum)
		if convErr != nil {
			return nil, convErr
		}
		e.ReservedAfter, convErr = infra.NumericToInt64(reservedNum)
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
