package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()
	_, err := s.Wallets().Credit(ctx, user, 50_000)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Wallets().Hold(ctx, user, 20_000); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := s.Wallets().Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), w.Balance)
	assert.Equal(t, int64(0), w.Escrow)
}

func TestHoldRequiresBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()
	_, err := s.Wallets().Credit(ctx, user, 100)
	require.NoError(t, err)

	_, err = s.Wallets().Hold(ctx, user, 101)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	_, err = s.Wallets().Hold(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
}

func TestAssignIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := &models.Job{ID: uuid.New(), ClientID: uuid.New(), Status: models.JobStatusOpen, CreatedAt: time.Now()}
	require.NoError(t, s.Jobs().Create(ctx, job))

	_, err := s.Jobs().Assign(ctx, job.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	_, err = s.Jobs().Assign(ctx, job.ID, uuid.New(), time.Now())
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestApplicationUniquenessIgnoresWithdrawn(t *testing.T) {
	ctx := context.Background()
	s := New()
	jobID, workerID := uuid.New(), uuid.New()
	first := &models.Application{ID: uuid.New(), JobID: jobID, WorkerID: workerID, Status: models.ApplicationPending, AppliedAt: time.Now()}
	require.NoError(t, s.Applications().Create(ctx, first))

	dup := &models.Application{ID: uuid.New(), JobID: jobID, WorkerID: workerID, Status: models.ApplicationPending, AppliedAt: time.Now()}
	assert.ErrorIs(t, s.Applications().Create(ctx, dup), repository.ErrDuplicate)

	require.NoError(t, s.Applications().Transition(ctx, first.ID, models.ApplicationPending, models.ApplicationWithdrawn, time.Now()))
	assert.NoError(t, s.Applications().Create(ctx, dup))
}

func TestSettleOnlyFromHeld(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	b := &models.Booking{
		ID: uuid.New(), ClientID: uuid.New(), WorkerID: uuid.New(), BudgetAmount: 1000,
		Status: models.BookingWorkerCompleted, PaymentStatus: models.PaymentHeld, AssignedAt: now, CreatedAt: now,
	}
	require.NoError(t, s.Bookings().Create(ctx, b))

	from := []models.BookingStatus{models.BookingWorkerCompleted}
	settled, err := s.Bookings().Settle(ctx, b.ID, from, models.BookingCompleted, models.PaymentReleased, now)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, settled.Status)
	assert.NotNil(t, settled.ReleasedAt)

	_, err = s.Bookings().Settle(ctx, b.ID, from, models.BookingCompleted, models.PaymentReleased, now)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestListHeldPagesByCreatedAtAndID(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		created := at
		if i >= 3 {
			created = at.Add(time.Hour)
		}
		require.NoError(t, s.Bookings().Create(ctx, &models.Booking{
			ID: uuid.New(), ClientID: uuid.New(), WorkerID: uuid.New(), BudgetAmount: 1,
			Status: models.BookingAccepted, PaymentStatus: models.PaymentHeld, CreatedAt: created,
		}))
	}
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{
		ID: uuid.New(), Status: models.BookingCompleted, PaymentStatus: models.PaymentReleased, CreatedAt: at,
	}))

	statuses := []models.BookingStatus{models.BookingAccepted}
	seen := map[uuid.UUID]bool{}
	var after *repository.Cursor
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		page, err := s.Bookings().ListHeld(ctx, statuses, after, 2)
		require.NoError(t, err)
		for _, b := range page {
			assert.False(t, seen[b.ID], "booking %s listed twice", b.ID)
			seen[b.ID] = true
		}
		if len(page) < 2 {
			break
		}
		after = repository.CursorAfter(page[len(page)-1])
	}
	assert.Len(t, seen, 5)
}
