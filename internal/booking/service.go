package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

// Dispute resolutions.
const (
	ResolveRelease = "release"
	ResolveRefund  = "refund"
)

type Service interface {
	GetBooking(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error)

	StartWork(ctx context.Context, bookingID, workerID uuid.UUID) (*models.Booking, error)
	MarkWorkerCompleted(ctx context.Context, bookingID, workerID uuid.UUID) (*models.Booking, error)
	ConfirmWorkCompletion(ctx context.Context, bookingID, clientID uuid.UUID) (*ledger.Outcome, error)

	RequestCancellation(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error)
	RespondToCancellation(ctx context.Context, bookingID, actorID uuid.UUID, approve bool) (*ledger.Outcome, error)
	RequestFullRefund(ctx context.Context, bookingID, clientID uuid.UUID, reason string) (*ledger.Outcome, error)

	OpenDispute(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error)
	ResolveDispute(ctx context.Context, bookingID, adminID uuid.UUID, resolution, note string) (*ledger.Outcome, error)
}

type service struct {
	store    repository.Store
	ledger   ledger.Service
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
}

var _ Service = (*service)(nil)

type Option func(*service)

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func NewService(store repository.Store, l ledger.Service, notifier notify.Notifier, log *slog.Logger, opts ...Option) Service {
	s := &service{
		store:    store,
		ledger:   l,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches a booking and translates a missing row.
func Load(ctx context.Context, repo repository.BookingRepository, id uuid.UUID) (*models.Booking, error) {
	b, err := repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("booking not found")
	}
	if err != nil {
		return nil, apperr.Internal("load booking", err)
	}
	return b, nil
}

func (s *service) GetBooking(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actorID) {
		return nil, apperr.Unauthorized("not a participant of this booking")
	}
	return b, nil
}

func (s *service) ListBookings(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	list, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list bookings", err)
	}
	return list, nil
}

func (s *service) StartWork(ctx context.Context, bookingID, workerID uuid.UUID) (*models.Booking, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if b.WorkerID != workerID {
		return nil, apperr.Unauthorized("only the assigned worker can start work")
	}
	now := s.now()
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := Advance(ctx, tx.Bookings(), b, models.BookingInProgress, now); err != nil {
			return err
		}
		return s.setJobStatus(ctx, tx, b, []models.JobStatus{models.JobStatusAssigned}, models.JobStatusInProgress, now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, b.ClientID, notify.KindWorkStarted, "Work started", "Your worker has started the job.", b)
	return b, nil
}

func (s *service) MarkWorkerCompleted(ctx context.Context, bookingID, workerID uuid.UUID) (*models.Booking, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if b.WorkerID != workerID {
		return nil, apperr.Unauthorized("only the assigned worker can mark work completed")
	}
	if err := Advance(ctx, s.store.Bookings(), b, models.BookingWorkerCompleted, s.now()); err != nil {
		return nil, err
	}
	s.notify(ctx, b.ClientID, notify.KindWorkCompleted, "Work completed",
		"Your worker marked the job completed. Please confirm to release payment.", b)
	return b, nil
}

// ConfirmWorkCompletion releases escrow to the worker and completes the job.
func (s *service) ConfirmWorkCompletion(ctx context.Context, bookingID, clientID uuid.UUID) (*ledger.Outcome, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if b.ClientID != clientID {
		return nil, apperr.Unauthorized("only the client can confirm completion")
	}
	var out *ledger.Outcome
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		out, err = s.ledger.ReleaseEscrow(ctx, tx, ledger.Request{
			BookingID: bookingID,
			Reason:    "client confirmed completion",
			Source:    ledger.SourceClientConfirmation,
			From:      SettleFrom(ledger.SourceClientConfirmation),
		})
		if err != nil || out.AlreadySettled {
			return err
		}
		return CompleteJob(ctx, tx, out.Booking, s.now())
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadySettled {
		s.notify(ctx, b.WorkerID, notify.KindPaymentReleased, "Payment released",
			fmt.Sprintf("%d has been released to your wallet.", b.BudgetAmount), out.Booking)
	}
	return out, nil
}

func (s *service) RequestCancellation(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actorID) {
		return nil, apperr.Unauthorized("not a participant of this booking")
	}
	if b.Status != models.BookingConfirmed && b.Status != models.BookingAccepted {
		return nil, apperr.InvalidState(fmt.Sprintf("cannot request cancellation of a %s booking", b.Status)).
			With("status", b.Status)
	}
	prev, by := b.Status, actorID
	b.PreviousStatus = prev
	b.CancellationRequestedBy = &by
	b.CancellationReason = strings.TrimSpace(reason)
	if err := Advance(ctx, s.store.Bookings(), b, models.BookingCancellationRequested, s.now()); err != nil {
		return nil, err
	}
	s.notify(ctx, b.Counterparty(actorID), notify.KindCancellationRequested, "Cancellation requested",
		"The other party asked to cancel this booking.", b)
	return b, nil
}

// RespondToCancellation lets the party that did not ask decide. Approval
// refunds the client and reopens the job; rejection restores the status
// the booking had before the request.
func (s *service) RespondToCancellation(ctx context.Context, bookingID, actorID uuid.UUID, approve bool) (*ledger.Outcome, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actorID) {
		return nil, apperr.Unauthorized("not a participant of this booking")
	}
	if b.Status != models.BookingCancellationRequested {
		return nil, apperr.InvalidState("no cancellation is pending").With("status", b.Status)
	}
	if b.CancellationRequestedBy != nil && *b.CancellationRequestedBy == actorID {
		return nil, apperr.Unauthorized("the requesting party cannot respond to its own request")
	}
	requester := b.Counterparty(actorID)
	now := s.now()

	if !approve {
		prev := b.PreviousStatus
		if prev == "" {
			prev = models.BookingConfirmed
		}
		b.PreviousStatus, b.CancellationRequestedBy, b.CancellationReason = "", nil, ""
		if err := Advance(ctx, s.store.Bookings(), b, prev, now); err != nil {
			return nil, err
		}
		s.notify(ctx, requester, notify.KindCancellationResolved, "Cancellation rejected",
			"Your cancellation request was rejected.", b)
		return &ledger.Outcome{Booking: b}, nil
	}

	appStatus := models.ApplicationUnpicked
	if requester == b.WorkerID {
		appStatus = models.ApplicationDeclined
	}
	out, err := s.refundAndReopen(ctx, b, ledger.SourceCancellationApproved, "cancellation approved: "+b.CancellationReason, appStatus)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, requester, notify.KindCancellationResolved, "Cancellation approved",
		"Your cancellation request was approved.", out.Booking)
	s.notify(ctx, b.ClientID, notify.KindPaymentRefunded, "Escrow refunded",
		"The booking was cancelled and your escrow was refunded.", out.Booking)
	return out, nil
}

// RequestFullRefund cancels a booking the worker has not accepted yet.
func (s *service) RequestFullRefund(ctx context.Context, bookingID, clientID uuid.UUID, reason string) (*ledger.Outcome, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if b.ClientID != clientID {
		return nil, apperr.Unauthorized("only the client can request a refund")
	}
	out, err := s.refundAndReopen(ctx, b, ledger.SourceClientRefund, reason, models.ApplicationUnpicked)
	if err != nil {
		return nil, err
	}
	if !out.AlreadySettled {
		s.notify(ctx, b.WorkerID, notify.KindPaymentRefunded, "Booking cancelled",
			"The client cancelled this booking before you accepted.", out.Booking)
	}
	return out, nil
}

func (s *service) OpenDispute(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*models.Booking, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actorID) {
		return nil, apperr.Unauthorized("not a participant of this booking")
	}
	if b.PaymentStatus != models.PaymentHeld {
		return nil, apperr.InvalidState("only bookings with held funds can be disputed").
			With("paymentStatus", b.PaymentStatus)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("a dispute reason is required")
	}
	b.PreviousStatus = b.Status
	b.DisputeReason = reason
	if err := Advance(ctx, s.store.Bookings(), b, models.BookingDisputed, s.now()); err != nil {
		return nil, err
	}
	s.log.Warn("booking disputed", "booking_id", b.ID, "opened_by", actorID, "previous_status", b.PreviousStatus)
	s.notify(ctx, b.Counterparty(actorID), notify.KindDisputeOpened, "Dispute opened",
		"A dispute was opened on your booking. Payment is frozen until it is resolved.", b)
	return b, nil
}

// ResolveDispute settles a disputed booking either way. It is the only path
// that moves money out of a disputed booking.
func (s *service) ResolveDispute(ctx context.Context, bookingID, adminID uuid.UUID, resolution, note string) (*ledger.Outcome, error) {
	b, err := Load(ctx, s.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	req := ledger.Request{
		BookingID: bookingID,
		Reason:    strings.TrimSpace("dispute resolved " + resolution + " " + note),
		Source:    ledger.SourceDisputeResolution,
		From:      SettleFrom(ledger.SourceDisputeResolution),
	}
	now := s.now()
	var out *ledger.Outcome
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		switch resolution {
		case ResolveRelease:
			out, err = s.ledger.ReleaseEscrow(ctx, tx, req)
			if err != nil || out.AlreadySettled {
				return err
			}
			return CompleteJob(ctx, tx, out.Booking, now)
		case ResolveRefund:
			out, err = s.ledger.RefundEscrow(ctx, tx, req)
			if err != nil || out.AlreadySettled {
				return err
			}
			return s.setJobStatus(ctx, tx, out.Booking,
				[]models.JobStatus{models.JobStatusAssigned, models.JobStatusInProgress}, models.JobStatusCancelled, now)
		default:
			return apperr.Validation("resolution must be release or refund")
		}
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dispute resolved", "booking_id", b.ID, "admin_id", adminID, "resolution", resolution)
	for _, uid := range []uuid.UUID{b.ClientID, b.WorkerID} {
		s.notify(ctx, uid, notify.KindDisputeResolved, "Dispute resolved",
			fmt.Sprintf("The dispute was resolved with a %s.", resolution), out.Booking)
	}
	return out, nil
}

// refundAndReopen cancels b with a refund, takes the worker's application
// out of play and returns the job to the open pool, all in one transaction.
func (s *service) refundAndReopen(ctx context.Context, b *models.Booking, source, reason string, appStatus models.ApplicationStatus) (*ledger.Outcome, error) {
	now := s.now()
	var out *ledger.Outcome
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		out, err = s.ledger.RefundEscrow(ctx, tx, ledger.Request{
			BookingID: b.ID,
			Reason:    reason,
			Source:    source,
			From:      SettleFrom(source),
		})
		if err != nil || out.AlreadySettled {
			return err
		}
		return ReleaseWorker(ctx, tx, out.Booking, appStatus, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseWorker moves the booking's application to status and reopens the
// job if the booking's worker still holds it.
func ReleaseWorker(ctx context.Context, tx repository.Store, b *models.Booking, status models.ApplicationStatus, at time.Time) error {
	if b.ApplicationID != nil {
		a, err := tx.Applications().GetByID(ctx, *b.ApplicationID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal("load application", err)
		}
		if a != nil && (a.Status == models.ApplicationSelected || a.Status == models.ApplicationAccepted) {
			err := tx.Applications().Transition(ctx, a.ID, a.Status, status, at)
			if err != nil && !errors.Is(err, repository.ErrConflict) {
				return apperr.Internal("update application", err)
			}
		}
	}
	if b.JobID != nil {
		err := tx.Jobs().Reopen(ctx, *b.JobID, b.WorkerID, at)
		if err != nil && !errors.Is(err, repository.ErrConflict) && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal("reopen job", err)
		}
	}
	return nil
}

// CompleteJob marks the booking's job completed after a release.
func CompleteJob(ctx context.Context, tx repository.Store, b *models.Booking, at time.Time) error {
	if b.JobID == nil {
		return nil
	}
	err := tx.Jobs().SetStatus(ctx, *b.JobID,
		[]models.JobStatus{models.JobStatusAssigned, models.JobStatusInProgress}, models.JobStatusCompleted, at)
	if err != nil && !errors.Is(err, repository.ErrConflict) && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal("complete job", err)
	}
	return nil
}

func (s *service) setJobStatus(ctx context.Context, tx repository.Store, b *models.Booking, from []models.JobStatus, to models.JobStatus, at time.Time) error {
	if b.JobID == nil {
		return nil
	}
	err := tx.Jobs().SetStatus(ctx, *b.JobID, from, to, at)
	if errors.Is(err, repository.ErrConflict) {
		s.log.Warn("job status out of step with booking", "job_id", *b.JobID, "booking_id", b.ID, "want", to)
		return nil
	}
	if err != nil {
		return apperr.Internal("update job", err)
	}
	return nil
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, kind, title, body string, b *models.Booking) {
	s.notifier.Notify(ctx, notify.Notification{
		UserID: userID, Kind: kind, Title: title, Body: body,
		Data: map[string]string{"bookingId": b.ID.String(), "status": string(b.Status)},
	})
}
