package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record is not in the expected state")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEscrowShortfall   = errors.New("escrow is lower than the settlement amount")
)

// Cursor is a keyset position in a (created_at, id) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter positions a cursor on b.
func CursorAfter(b *models.Booking) *Cursor {
	return &Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
}

type JobRepository interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListOpen(ctx context.Context, category string, now time.Time, limit int) ([]*models.Job, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	// Assign flips open -> assigned for workerID. ErrConflict when the job is
	// no longer open; this is the gate for worker selection.
	Assign(ctx context.Context, id, workerID uuid.UUID, at time.Time) (*models.Job, error)
	// Reopen returns a job held by workerID to open and clears the assignee.
	Reopen(ctx context.Context, id, workerID uuid.UUID, at time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, at time.Time) error
	AdjustApplicantCount(ctx context.Context, id uuid.UUID, delta int) error
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
}

type ApplicationRepository interface {
	// Create fails with ErrDuplicate if the worker has a non-withdrawn
	// application for the same job.
	Create(ctx context.Context, a *models.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Application, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Application, error)
	FindByJobAndWorker(ctx context.Context, jobID, workerID uuid.UUID) (*models.Application, error)
	// Transition moves from -> to and stamps the timestamp for to.
	Transition(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time) error
	SetBooking(ctx context.Context, id, bookingID uuid.UUID) error
	ListSelectedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Application, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error)
	// Save persists workflow fields of b when the stored row still has status
	// expected and the same payment status. ErrConflict otherwise.
	Save(ctx context.Context, b *models.Booking, expected models.BookingStatus) error
	// Settle moves payment held -> payment and status (one of from) -> to in a
	// single conditional write. ErrConflict when either guard fails.
	Settle(ctx context.Context, id uuid.UUID, from []models.BookingStatus, to models.BookingStatus, payment models.PaymentStatus, at time.Time) (*models.Booking, error)
	// ListHeld pages through held bookings in statuses ordered by
	// (created_at, id), starting after the cursor when one is given.
	ListHeld(ctx context.Context, statuses []models.BookingStatus, after *Cursor, limit int) ([]*models.Booking, error)
	SumHeld(ctx context.Context) (int64, error)
}

type WalletRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// Hold moves amount from balance to escrow if balance covers it.
	Hold(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error)
	// DebitEscrow removes amount from escrow (funds leave to the payee).
	DebitEscrow(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error)
	// ReturnEscrow moves amount from escrow back to balance.
	ReturnEscrow(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error)
	SumEscrow(ctx context.Context) (int64, error)
}

type TransactionRepository interface {
	// Append fails with ErrDuplicate if the idempotency key was already used.
	Append(ctx context.Context, t *models.WalletTransaction) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
	// History returns every transaction of userID, oldest first.
	History(ctx context.Context, userID uuid.UUID) ([]*models.WalletTransaction, error)
	GetByKey(ctx context.Context, key string) (*models.WalletTransaction, error)
}

type RuleRepository interface {
	// List returns rules ordered by priority, then id.
	List(ctx context.Context, enabledOnly bool) ([]*models.AutoReleaseRule, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AutoReleaseRule, error)
	Create(ctx context.Context, r *models.AutoReleaseRule) error
	Update(ctx context.Context, r *models.AutoReleaseRule) error
	Count(ctx context.Context) (int, error)
}

type ReleaseLogRepository interface {
	Append(ctx context.Context, l *models.AutoReleaseLog) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.AutoReleaseLog, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AutoReleaseLog, error)
	Exists(ctx context.Context, bookingID, ruleID uuid.UUID, action string) (bool, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List filters by role, and by verification when verified is non-nil.
	List(ctx context.Context, role string, verified *bool, limit int) ([]*models.User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*models.User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error)
}

// Store groups the repositories. WithTx runs fn against a Store whose
// repositories share one transaction; fn returning an error rolls it back.
type Store interface {
	Jobs() JobRepository
	Applications() ApplicationRepository
	Bookings() BookingRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Rules() RuleRepository
	ReleaseLogs() ReleaseLogRepository
	Users() UserRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
