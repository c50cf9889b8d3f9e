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

type roomRepo struct{}

// NewRoomRepository returns a pgx-backed RoomRepository.
func NewRoomRepository() RoomRepository {
	return &roomRepo{}
}

const roomColumns = `id, game_type, max_players, entry_fee, prize_pool, status,
	       engine_state, current_turn, winner_id, created_at, started_at, finished_at`

func (r *roomRepo) Insert(ctx context.Context, db DBTX, room *domain.Room) error {
	_, err := db.Exec(ctx, `
		INSERT INTO rooms
		  (id, game_type, max_players, entry_fee, prize_pool, status, engine_state, current_turn, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		room.ID,
		string(room.GameType),
		room.MaxPlayers,
		infra.Int64ToNumeric(room.EntryFee),
		infra.Int64ToNumeric(room.PrizePool),
		string(room.Status),
		room.EngineState,
		room.CurrentTurnIndex,
		room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *roomRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Room, error) {
	row := db.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

func (r *roomRepo) ListActive(ctx context.Context, db DBTX) ([]*domain.Room, error) {
	rows, err := db.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE status IN ('WAITING', 'PLAYING')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query active rooms: %w", err)
	}
	defer rows.Close()

	var out []*domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *roomRepo) SaveSnapshot(ctx context.Context, db DBTX, room *domain.Room) error {
	_, err := db.Exec(ctx, `
		UPDATE rooms
		SET status = $2, engine_state = $3, current_turn = $4, winner_id = $5,
		    started_at = $6, finished_at = $7
		WHERE id = $1`,
		room.ID,
		string(room.Status),
		room.EngineState,
		room.CurrentTurnIndex,
		room.WinnerID,
		room.StartedAt,
		room.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save room snapshot: %w", err)
	}
	return nil
}

func (r *roomRepo) InsertParticipant(ctx context.Context, db DBTX, p *domain.Participant) error {
	_, err := db.Exec(ctx, `
		INSERT INTO participants (room_id, user_id, seat, color, score)
		VALUES ($1, $2, $3, $4, $5)`,
		p.RoomID, p.UserID, p.Seat, string(p.Color), p.Score)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *roomRepo) ListParticipants(ctx context.Context, db DBTX, roomID uuid.UUID) ([]domain.Participant, error) {
	rows, err := db.Query(ctx, `
		SELECT room_id, user_id, seat, color, score
		FROM participants
		WHERE room_id = $1
		ORDER BY seat ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var parts []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Seat, &p.Color, &p.Score); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (r *roomRepo) UpdateScore(ctx context.Context, db DBTX, roomID, userID uuid.UUID, score int) error {
	_, err := db.Exec(ctx, `
		UPDATE participants SET score = $3
		WHERE room_id = $1 AND user_id = $2`, roomID, userID, score)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var rm domain.Room
	var feeNum, poolNum pgtype.Numeric
	err := row.Scan(
		&rm.ID, &rm.GameType, &rm.MaxPlayers,
		&feeNum, &poolNum, &rm.Status,
		&rm.EngineState, &rm.CurrentTurnIndex, &rm.WinnerID,
		&rm.CreatedAt, &rm.StartedAt, &rm.FinishedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}

	var convErr error
	rm.EntryFee, convErr = infra.NumericToInt64(feeNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert entry_fee: %w", convErr)
	}
	rm.PrizePool, convErr = infra.NumericToInt64(poolNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert prize_pool: %w", convErr)
	}

	return &rm, nil
}
