package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PgStore) Jobs() JobRepository                 { return &JobRepo{db: s.db} }
func (s *PgStore) Applications() ApplicationRepository { return &ApplicationRepo{db: s.db} }
func (s *PgStore) Bookings() BookingRepository         { return &BookingRepo{db: s.db} }
func (s *PgStore) Wallets() WalletRepository           { return &WalletRepo{db: s.db} }
func (s *PgStore) Transactions() TransactionRepository { return &TransactionRepo{db: s.db} }
func (s *PgStore) Rules() RuleRepository               { return &RuleRepo{db: s.db} }
func (s *PgStore) ReleaseLogs() ReleaseLogRepository   { return &ReleaseLogRepo{db: s.db} }
func (s *PgStore) Users() UserRepository               { return &UserRepo{db: s.db} }

// WithTx begins a transaction unless s is already inside one, in which case
// fn joins the outer transaction.
func (s *PgStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgStore{pool: s.pool, db: tx, inTx: true})
	})
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
