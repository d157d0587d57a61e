package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/testutil"
)

func newTestService(env *testutil.Env) Service {
	return NewService(env.Store, env.Ledger, env.Notifier, env.Log, WithClock(env.Clock.Now))
}

func TestWorkFlowReleasesOnConfirmation(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingAccepted)

	_, err := svc.StartWork(ctx, bk.Booking.ID, bk.Client)
	assert.Equal(t, apperr.ReasonUnauthorized, apperr.ReasonOf(err))

	b, err := svc.StartWork(ctx, bk.Booking.ID, bk.Worker)
	require.NoError(t, err)
	assert.Equal(t, models.BookingInProgress, b.Status)
	job, _ := env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusInProgress, job.Status)

	// The client cannot release before the worker reports completion.
	_, err = svc.ConfirmWorkCompletion(ctx, bk.Booking.ID, bk.Client)
	assert.Equal(t, apperr.ReasonInvalidState, apperr.ReasonOf(err))

	b, err = svc.MarkWorkerCompleted(ctx, bk.Booking.ID, bk.Worker)
	require.NoError(t, err)
	assert.NotNil(t, b.WorkerCompletedAt)

	out, err := svc.ConfirmWorkCompletion(ctx, bk.Booking.ID, bk.Client)
	require.NoError(t, err)
	assert.False(t, out.AlreadySettled)
	assert.Equal(t, models.BookingCompleted, out.Booking.Status)
	assert.Equal(t, models.PaymentReleased, out.Booking.PaymentStatus)

	client, worker := env.Wallet(t, bk.Client), env.Wallet(t, bk.Worker)
	assert.Equal(t, int64(30_000), client.Balance)
	assert.Equal(t, int64(0), client.Escrow)
	assert.Equal(t, int64(20_000), worker.Balance)
	job, _ = env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Contains(t, env.Notifier.Kinds(bk.Worker), notify.KindPaymentReleased)

	again, err := svc.ConfirmWorkCompletion(ctx, bk.Booking.ID, bk.Client)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Worker).Balance)
}

func TestCancellationRequestApproved(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingAccepted)

	b, err := svc.RequestCancellation(ctx, bk.Booking.ID, bk.Worker, "family emergency")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancellationRequested, b.Status)
	assert.Equal(t, models.BookingAccepted, b.PreviousStatus)

	_, err = svc.RespondToCancellation(ctx, bk.Booking.ID, bk.Worker, true)
	assert.Equal(t, apperr.ReasonUnauthorized, apperr.ReasonOf(err))

	out, err := svc.RespondToCancellation(ctx, bk.Booking.ID, bk.Client, true)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, out.Booking.Status)
	assert.Equal(t, models.PaymentRefunded, out.Booking.PaymentStatus)
	assert.Equal(t, int64(50_000), env.Wallet(t, bk.Client).Balance)

	job, _ := env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusOpen, job.Status)
	app, _ := env.Store.Applications().GetByID(ctx, bk.Application.ID)
	assert.Equal(t, models.ApplicationDeclined, app.Status)
}

func TestCancellationRequestRejectedRestoresStatus(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingAccepted)
	acceptedAt := *bk.Booking.AcceptedAt

	env.Clock.Advance(time.Hour)
	_, err := svc.RequestCancellation(ctx, bk.Booking.ID, bk.Client, "changed plans")
	require.NoError(t, err)

	out, err := svc.RespondToCancellation(ctx, bk.Booking.ID, bk.Worker, false)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, out.Booking.Status)
	assert.Equal(t, models.PaymentHeld, out.Booking.PaymentStatus)

	cur := env.Reload(t, bk.Booking.ID)
	assert.Equal(t, models.BookingAccepted, cur.Status)
	assert.Nil(t, cur.CancellationRequestedBy)
	assert.True(t, acceptedAt.Equal(*cur.AcceptedAt))
	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Client).Escrow)
}

func TestCancellationRequestNeedsConfirmedOrAccepted(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	bk := env.Book(t, 50_000, 20_000, models.BookingInProgress)

	_, err := svc.RequestCancellation(context.Background(), bk.Booking.ID, bk.Client, "")
	assert.Equal(t, apperr.ReasonInvalidState, apperr.ReasonOf(err))
}

func TestRequestFullRefundBeforeAcceptance(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingConfirmed)

	out, err := svc.RequestFullRefund(ctx, bk.Booking.ID, bk.Client, "found someone else")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, out.Booking.PaymentStatus)
	assert.Equal(t, int64(50_000), env.Wallet(t, bk.Client).Balance)

	app, _ := env.Store.Applications().GetByID(ctx, bk.Application.ID)
	assert.Equal(t, models.ApplicationUnpicked, app.Status)
	job, _ := env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusOpen, job.Status)
}

func TestRequestFullRefundAfterAcceptanceIsRejected(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	bk := env.Book(t, 50_000, 20_000, models.BookingAccepted)

	_, err := svc.RequestFullRefund(context.Background(), bk.Booking.ID, bk.Client, "")
	assert.Equal(t, apperr.ReasonInvalidState, apperr.ReasonOf(err))
	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Client).Escrow)
}

func TestDisputeFreezesUntilResolved(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	_, err := svc.OpenDispute(ctx, bk.Booking.ID, bk.Client, "")
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))

	b, err := svc.OpenDispute(ctx, bk.Booking.ID, bk.Client, "work not done")
	require.NoError(t, err)
	assert.Equal(t, models.BookingDisputed, b.Status)
	assert.Equal(t, models.BookingWorkerCompleted, b.PreviousStatus)

	_, err = svc.ConfirmWorkCompletion(ctx, bk.Booking.ID, bk.Client)
	assert.Equal(t, apperr.ReasonInvalidState, apperr.ReasonOf(err))

	_, err = svc.ResolveDispute(ctx, bk.Booking.ID, uuid.New(), "split", "")
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))

	out, err := svc.ResolveDispute(ctx, bk.Booking.ID, uuid.New(), ResolveRefund, "no evidence of work")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, out.Booking.Status)
	assert.Equal(t, models.PaymentRefunded, out.Booking.PaymentStatus)
	assert.Equal(t, int64(50_000), env.Wallet(t, bk.Client).Balance)
	job, _ := env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
}

func TestResolveDisputeRelease(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingInProgress)

	_, err := svc.OpenDispute(ctx, bk.Booking.ID, bk.Worker, "client unresponsive")
	require.NoError(t, err)
	out, err := svc.ResolveDispute(ctx, bk.Booking.ID, uuid.New(), ResolveRelease, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentReleased, out.Booking.PaymentStatus)
	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Worker).Balance)
}

func TestGetBookingRequiresParticipant(t *testing.T) {
	env := testutil.NewEnv()
	svc := newTestService(env)
	ctx := context.Background()
	bk := env.Book(t, 50_000, 20_000, models.BookingConfirmed)

	_, err := svc.GetBooking(ctx, bk.Booking.ID, uuid.New())
	assert.Equal(t, apperr.ReasonUnauthorized, apperr.ReasonOf(err))
	_, err = svc.GetBooking(ctx, uuid.New(), bk.Client)
	assert.Equal(t, apperr.ReasonNotFound, apperr.ReasonOf(err))
	b, err := svc.GetBooking(ctx, bk.Booking.ID, bk.Worker)
	require.NoError(t, err)
	assert.Equal(t, bk.Booking.ID, b.ID)

	list, err := svc.ListBookings(ctx, bk.Client)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
