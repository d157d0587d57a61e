package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type WalletRepo struct {
	db DBTX
}

const walletColumns = `user_id, balance, escrow, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.UserID, &w.Balance, &w.Escrow, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (r *WalletRepo) Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `
		INSERT INTO wallets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+walletColumns, userID))
}

// Hold is the check-and-set on balance: the WHERE clause re-validates funds
// in the same statement that moves them.
func (r *WalletRepo) Hold(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $1, escrow = escrow + $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
		RETURNING `+walletColumns, amount, userID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInsufficientFunds
	}
	return w, err
}

func (r *WalletRepo) Credit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING `+walletColumns, userID, amount))
}

func (r *WalletRepo) DebitEscrow(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `
		UPDATE wallets SET escrow = escrow - $1, updated_at = now()
		WHERE user_id = $2 AND escrow >= $1
		RETURNING `+walletColumns, amount, userID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrEscrowShortfall
	}
	return w, err
}

func (r *WalletRepo) ReturnEscrow(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `
		UPDATE wallets SET escrow = escrow - $1, balance = balance + $1, updated_at = now()
		WHERE user_id = $2 AND escrow >= $1
		RETURNING `+walletColumns, amount, userID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrEscrowShortfall
	}
	return w, err
}

func (r *WalletRepo) SumEscrow(ctx context.Context) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(escrow), 0) FROM wallets`).Scan(&sum)
	return sum, err
}
