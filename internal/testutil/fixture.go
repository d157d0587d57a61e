// Package testutil builds booking fixtures on the in-memory store.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/payment"
	"github.com/gighire/backend/internal/repository"
	"github.com/gighire/backend/internal/repository/memory"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	Sent []notify.Notification
}

func (n *Notifier) Notify(_ context.Context, msg notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
}

// Kinds lists the kinds sent to userID, in order.
func (n *Notifier) Kinds(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.Sent {
		if m.UserID == userID {
			out = append(out, m.Kind)
		}
	}
	return out
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Env bundles the collaborators most service tests need.
type Env struct {
	Store    *memory.Store
	Ledger   ledger.Service
	Clock    *Clock
	Notifier *Notifier
	Log      *slog.Logger
}

func NewEnv() *Env {
	store := memory.New()
	clock := NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := DiscardLogger()
	return &Env{
		Store:    store,
		Ledger:   ledger.NewService(store, payment.NewSandbox(), log, ledger.WithClock(clock.Now)),
		Clock:    clock,
		Notifier: &Notifier{},
		Log:      log,
	}
}

// Booked is a job with one selected worker and its held booking.
type Booked struct {
	Client      uuid.UUID
	Worker      uuid.UUID
	Job         *models.Job
	Application *models.Application
	Booking     *models.Booking
}

// Book creates a funded client, a verified worker and a job assigned to
// that worker, then holds amount in escrow for a booking in status. The
// application status follows the booking: selected until accepted.
func (e *Env) Book(t *testing.T, balance, amount int64, status models.BookingStatus) *Booked {
	t.Helper()
	ctx := context.Background()
	now := e.Clock.Now()
	client, worker := uuid.New(), uuid.New()
	require.NoError(t, e.Store.Users().Create(ctx, &models.User{ID: client, Email: client.String(), Role: models.RoleClient, IsVerified: true, IsActive: true}))
	require.NoError(t, e.Store.Users().Create(ctx, &models.User{ID: worker, Email: worker.String(), Role: models.RoleWorker, IsVerified: true, IsActive: true}))
	_, err := e.Store.Wallets().Credit(ctx, client, balance)
	require.NoError(t, err)

	j := &models.Job{ID: uuid.New(), ClientID: client, Title: "Fix kitchen sink", Category: "plumbing",
		Budget: models.Budget{Amount: amount}, Status: models.JobStatusOpen, CreatedAt: now}
	require.NoError(t, e.Store.Jobs().Create(ctx, j))
	a := &models.Application{ID: uuid.New(), JobID: j.ID, WorkerID: worker, Status: models.ApplicationPending, AppliedAt: now}
	require.NoError(t, e.Store.Applications().Create(ctx, a))

	jid, aid, held := j.ID, a.ID, now
	b := &models.Booking{
		ID: uuid.New(), JobID: &jid, ApplicationID: &aid, ClientID: client, WorkerID: worker,
		BudgetAmount: amount, Status: status, PaymentStatus: models.PaymentHeld,
		AssignedAt: now, HeldAt: &held, CreatedAt: now, UpdatedAt: now,
	}
	if status != models.BookingPending && status != models.BookingConfirmed {
		b.AcceptedAt = &held
	}
	if status == models.BookingWorkerCompleted {
		b.WorkerCompletedAt = &held
	}

	err = e.Store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Jobs().Assign(ctx, j.ID, worker, now); err != nil {
			return err
		}
		if status == models.BookingInProgress || status == models.BookingWorkerCompleted {
			if err := tx.Jobs().SetStatus(ctx, j.ID, []models.JobStatus{models.JobStatusAssigned}, models.JobStatusInProgress, now); err != nil {
				return err
			}
		}
		if err := tx.Applications().Transition(ctx, a.ID, models.ApplicationPending, models.ApplicationSelected, now); err != nil {
			return err
		}
		if b.AcceptedAt != nil {
			if err := tx.Applications().Transition(ctx, a.ID, models.ApplicationSelected, models.ApplicationAccepted, now); err != nil {
				return err
			}
		}
		if err := e.Ledger.Hold(ctx, tx, b); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}
		return tx.Applications().SetBooking(ctx, a.ID, b.ID)
	})
	require.NoError(t, err)

	j, err = e.Store.Jobs().GetByID(ctx, j.ID)
	require.NoError(t, err)
	a, err = e.Store.Applications().GetByID(ctx, a.ID)
	require.NoError(t, err)
	return &Booked{Client: client, Worker: worker, Job: j, Application: a, Booking: b}
}

// Wallet returns userID's wallet, creating an empty one if needed.
func (e *Env) Wallet(t *testing.T, userID uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := e.Store.Wallets().Ensure(context.Background(), userID)
	require.NoError(t, err)
	return w
}

// Reload fetches the current booking row.
func (e *Env) Reload(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	b, err := e.Store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}
