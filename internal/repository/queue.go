package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
)

type queueRepo struct{}

// NewQueueRepository returns a pgx-backed QueueRepository.
func NewQueueRepository() QueueRepository {
	return &queueRepo{}
}

// Replace enforces the at-most-one-entry-per-user rule: a duplicate
// enqueue drops the prior entry and starts a fresh wait.
func (r *queueRepo) Replace(ctx context.Context, db DBTX, entry *domain.QueueEntry) error {
	if _, err := db.Exec(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1`, entry.UserID); err != nil {
		return fmt.Errorf("clear prior queue entry: %w", err)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO matchmaking_queue (id, user_id, game_type, max_players, entry_fee, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, string(entry.GameType), entry.MaxPlayers,
		infra.Int64ToNumeric(entry.EntryFee), entry.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *queueRepo) DeleteByUser(ctx context.Context, db DBTX, userID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

func (r *queueRepo) DeleteByID(ctx context.Context, db DBTX, id uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM matchmaking_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

func (r *queueRepo) Groups(ctx context.Context, db DBTX) (map[domain.QueueGroup]int, error) {
	rows, err := db.Query(ctx, `
		SELECT game_type, max_players, entry_fee, COUNT(*)
		FROM matchmaking_queue
		GROUP BY game_type, max_players, entry_fee`)
	if err != nil {
		return nil, fmt.Errorf("query queue groups: %w", err)
	}
	defer rows.Close()

	groups := make(map[domain.QueueGroup]int)
	for rows.Next() {
		var g domain.QueueGroup
		var feeNum pgtype.Numeric
		var count int
		if err := rows.Scan(&g.GameType, &g.MaxPlayers, &feeNum, &count); err != nil {
			return nil, fmt.Errorf("scan queue group: %w", err)
		}
		g.EntryFee, err = infra.NumericToInt64(feeNum)
		if err != nil {
			return nil, fmt.Errorf("convert entry_fee: %w", err)
		}
		groups[g] = count
	}
	return groups, rows.Err()
}

// OldestLocked claims the head of a bucket for a matchmaking sweep.
// FOR UPDATE SKIP LOCKED keeps the claim atomic without blocking.
func (r *queueRepo) OldestLocked(ctx context.Context, tx pgx.Tx, group domain.QueueGroup, limit int) ([]domain.QueueEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, game_type, max_players, entry_fee, enqueued_at
		FROM matchmaking_queue
		WHERE game_type = $1 AND max_players = $2 AND entry_fee = $3
		ORDER BY enqueued_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $4`,
		string(group.GameType), group.MaxPlayers, infra.Int64ToNumeric(group.EntryFee), limit)
	if err != nil {
		return nil, fmt.Errorf("lock queue entries: %w", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

func (r *queueRepo) FindByUser(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.QueueEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, game_type, max_players, entry_fee, enqueued_at
		FROM matchmaking_queue WHERE user_id = $1`, userID)

	var e domain.QueueEntry
	var feeNum pgtype.Numeric
	err := row.Scan(&e.ID, &e.UserID, &e.GameType, &e.MaxPlayers, &feeNum, &e.EnqueuedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}
	e.EntryFee, err = infra.NumericToInt64(feeNum)
	if err != nil {
		return nil, fmt.Errorf("convert entry_fee: %w", err)
	}
	return &e, nil
}

func collectQueueEntries(rows pgx.Rows) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		var feeNum pgtype.Numeric
		if err := rows.Scan(&e.ID, &e.UserID, &e.GameType, &e.MaxPlayers, &feeNum, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		var convErr error
		e.EntryFee, convErr = infra.NumericToInt64(feeNum)
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
