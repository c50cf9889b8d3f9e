package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
)

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		SELECT id, phone, name, verified, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepo) FindByPhone(ctx context.Context, db DBTX, phone string) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		SELECT id, phone, name, verified, created_at
		FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

func (r *userRepo) Create(ctx context.Context, db DBTX, user *domain.User) error {
	_, err := db.Exec(ctx, `
		INSERT INTO users (id, phone, name, verified, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Phone, user.Name, user.Verified, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.Verified, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

func (r *walletRepo) FindByUser(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `
		SELECT user_id, balance, reserved_balance, created_at, updated_at
		FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

func (r *walletRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `
		SELECT user_id, balance, reserved_balance, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

func (r *walletRepo) Create(ctx context.Context, db DBTX, wallet *domain.Wallet) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, reserved_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		wallet.UserID,
		infra.Int64ToNumeric(wallet.Balance),
		infra.Int64ToNumeric(wallet.ReservedBalance),
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// UpdateBalances uses server-side arithmetic with dynamic SET clauses.
func (r *walletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta domain.BalanceUpdate) (*domain.Wallet, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{}
	argIdx := 1

	if delta.HasBalanceDelta() {
		setClauses = append(setClauses, fmt.Sprintf("balance = balance + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Balance))
		argIdx++
	}
	if delta.HasReservedDelta() {
		setClauses = append(setClauses, fmt.Sprintf("reserved_balance = reserved_balance + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Reserved))
		argIdx++
	}

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE wallets SET %s
		WHERE user_id = $%d
		RETURNING user_id, balance, reserved_balance, created_at, updated_at`,
		strings.Join(setClauses, ", "), argIdx)

	row := tx.QueryRow(ctx, query, args...)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var balNum, reservedNum pgtype.Numeric
	err := row.Scan(&w.UserID, &balNum, &reservedNum, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	var convErr error
	w.Balance, convErr = infra.NumericToInt64(balNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance: %w", convErr)
	}
	w.ReservedBalance, convErr = infra.NumericToInt64(reservedNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert reserved_balance: %w", convErr)
	}

	return &w, nil
}
