package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type TransactionRepo struct {
	db DBTX
}

const transactionColumns = `id, user_id, booking_id, type, amount, balance_after, escrow_after, idempotency_key, reference, description, created_at`

func scanTransaction(row pgx.Row) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.BookingID, &t.Type, &t.Amount, &t.BalanceAfter, &t.EscrowAfter, &t.IdempotencyKey, &t.Reference, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows, err error) ([]*models.WalletTransaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *TransactionRepo) Append(ctx context.Context, t *models.WalletTransaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallet_transactions (id, user_id, booking_id, type, amount, balance_after, escrow_after, idempotency_key, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.UserID, t.BookingID, t.Type, t.Amount, t.BalanceAfter, t.EscrowAfter, t.IdempotencyKey, t.Reference, t.Description, t.CreatedAt)
	return mapErr(err)
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2
	`, userID, limit)
	return collectTransactions(rows, err)
}

func (r *TransactionRepo) History(ctx context.Context, userID uuid.UUID) ([]*models.WalletTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
	return collectTransactions(rows, err)
}

func (r *TransactionRepo) GetByKey(ctx context.Context, key string) (*models.WalletTransaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE idempotency_key = $1`, key))
}
