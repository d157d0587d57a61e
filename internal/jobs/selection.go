package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/booking"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

// SelectWorker arbitrates concurrent selections for one job. The job's
// open -> assigned flip is the gate: exactly one caller wins it, and the
// hold, application and booking writes share its transaction so a losing
// or failing selection leaves nothing behind.
func (s *service) SelectWorker(ctx context.Context, jobID, applicationID, clientID uuid.UUID) (*Selection, error) {
	j, err := s.getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientID != clientID {
		return nil, apperr.Unauthorized("only the job owner can select a worker")
	}
	now := s.now()
	switch {
	case j.Status == models.JobStatusAssigned || j.Status == models.JobStatusInProgress:
		s.metrics.RecordSelectionConflict()
		return nil, apperr.NoLongerAvailable("another worker was already selected for this job")
	case j.Status != models.JobStatusOpen || j.ExpiredAt(now):
		return nil, apperr.JobNotOpen(fmt.Sprintf("job is %s", j.Status))
	}
	a, err := s.getApplication(ctx, s.store, applicationID)
	if err != nil {
		return nil, err
	}
	if a.JobID != jobID {
		return nil, apperr.InvalidState("application does not belong to this job")
	}
	if a.Status != models.ApplicationPending {
		return nil, apperr.InvalidState(fmt.Sprintf("application is %s", a.Status))
	}
	// Workers suspended after applying must not get escrow held for them.
	if err := s.checkEligible(ctx, a.WorkerID); err != nil {
		return nil, err
	}

	amount := j.Budget.HoldAmount()
	var sel Selection
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		assigned, err := tx.Jobs().Assign(ctx, jobID, a.WorkerID, now)
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.RecordSelectionConflict()
			return apperr.NoLongerAvailable("another worker was already selected for this job")
		}
		if err != nil {
			return apperr.Internal("assign job", err)
		}

		err = tx.Applications().Transition(ctx, a.ID, models.ApplicationPending, models.ApplicationSelected, now)
		if errors.Is(err, repository.ErrConflict) {
			return apperr.InvalidState("application is no longer pending")
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.NoLongerAvailable("another application is already selected")
		}
		if err != nil {
			return apperr.Internal("select application", err)
		}

		jid, aid, held := jobID, a.ID, now
		b := &models.Booking{
			ID:            uuid.New(),
			JobID:         &jid,
			ApplicationID: &aid,
			ClientID:      clientID,
			WorkerID:      a.WorkerID,
			BudgetAmount:  amount,
			Status:        models.BookingConfirmed,
			PaymentStatus: models.PaymentHeld,
			AssignedAt:    now,
			HeldAt:        &held,
			CreatedAt:     now,
		}
		if err := s.ledger.Hold(ctx, tx, b); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return apperr.Internal("create booking", err)
		}
		if err := tx.Applications().SetBooking(ctx, a.ID, b.ID); err != nil {
			return apperr.Internal("link booking", err)
		}

		sel.Job = assigned
		sel.Booking = b
		sel.Application, err = tx.Applications().GetByID(ctx, a.ID)
		if err != nil {
			return apperr.Internal("reload application", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("worker selected",
		"job_id", jobID, "application_id", a.ID, "worker_id", a.WorkerID,
		"booking_id", sel.Booking.ID, "amount", amount)
	s.notify(ctx, a.WorkerID, notify.KindWorkerSelected, "You were selected",
		fmt.Sprintf("You were selected for %q. Accept within %s.", j.Title, s.window),
		map[string]string{"jobId": jobID.String(), "applicationId": a.ID.String(), "bookingId": sel.Booking.ID.String()})
	return &sel, nil
}

func (s *service) ownSelection(ctx context.Context, applicationID, workerID uuid.UUID) (*models.Application, *models.Booking, error) {
	a, err := s.getApplication(ctx, s.store, applicationID)
	if err != nil {
		return nil, nil, err
	}
	if a.WorkerID != workerID {
		return nil, nil, apperr.Unauthorized("not your application")
	}
	if a.Status != models.ApplicationSelected {
		return nil, nil, apperr.InvalidState(fmt.Sprintf("application is %s", a.Status))
	}
	if a.BookingID == nil {
		return nil, nil, apperr.Internal("selected application has no booking", nil)
	}
	b, err := s.store.Bookings().GetByID(ctx, *a.BookingID)
	if err != nil {
		return nil, nil, apperr.Internal("load booking", err)
	}
	return a, b, nil
}

func (s *service) AcceptSelection(ctx context.Context, applicationID, workerID uuid.UUID) (*Selection, error) {
	a, b, err := s.ownSelection(ctx, applicationID, workerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	deadline := a.SelectionDeadline(s.window)
	if now.After(deadline) {
		// Deadlines are evaluated lazily; expire it now rather than wait for the sweep.
		if _, expErr := s.unwindSelection(ctx, a, models.ApplicationUnpicked, ledger.SourceSelectionExpired); expErr != nil {
			s.log.Warn("expire stale selection failed", "application_id", a.ID, "error", expErr)
		}
		return nil, apperr.New(apperr.ReasonSelectionExpired, "acceptance window has passed").
			With("deadline", deadline)
	}

	var sel Selection
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		err := tx.Applications().Transition(ctx, a.ID, models.ApplicationSelected, models.ApplicationAccepted, now)
		if errors.Is(err, repository.ErrConflict) {
			return apperr.InvalidState("application is no longer selected")
		}
		if err != nil {
			return apperr.Internal("accept application", err)
		}
		if err := booking.Advance(ctx, tx.Bookings(), b, models.BookingAccepted, now); err != nil {
			return err
		}
		sel.Booking = b
		if sel.Application, err = tx.Applications().GetByID(ctx, a.ID); err != nil {
			return apperr.Internal("reload application", err)
		}
		if sel.Job, err = tx.Jobs().GetByID(ctx, a.JobID); err != nil {
			return apperr.Internal("reload job", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, b.ClientID, notify.KindSelectionAccepted, "Worker accepted",
		"Your selected worker accepted the job.", map[string]string{"bookingId": b.ID.String()})
	return &sel, nil
}

func (s *service) DeclineSelection(ctx context.Context, applicationID, workerID uuid.UUID) (*Selection, error) {
	a, _, err := s.ownSelection(ctx, applicationID, workerID)
	if err != nil {
		return nil, err
	}
	sel, err := s.unwindSelection(ctx, a, models.ApplicationDeclined, ledger.SourceSelectionDeclined)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sel.Booking.ClientID, notify.KindSelectionDeclined, "Worker declined",
		"Your selected worker declined. Your escrow was refunded and the job is open again.",
		map[string]string{"jobId": a.JobID.String(), "bookingId": sel.Booking.ID.String()})
	return sel, nil
}

// unwindSelection ends a selection that was never accepted: the application
// leaves selected, the booking is cancelled with a refund and the job reopens.
func (s *service) unwindSelection(ctx context.Context, a *models.Application, to models.ApplicationStatus, source string) (*Selection, error) {
	now := s.now()
	var sel Selection
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		err := tx.Applications().Transition(ctx, a.ID, models.ApplicationSelected, to, now)
		if errors.Is(err, repository.ErrConflict) {
			return apperr.InvalidState("application is no longer selected")
		}
		if err != nil {
			return apperr.Internal("update application", err)
		}
		out, err := s.ledger.RefundEscrow(ctx, tx, ledger.Request{
			BookingID: *a.BookingID,
			Reason:    string(to),
			Source:    source,
			From:      booking.SettleFrom(source),
		})
		if err != nil {
			return err
		}
		err = tx.Jobs().Reopen(ctx, a.JobID, a.WorkerID, now)
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return apperr.Internal("reopen job", err)
		}
		sel.Booking = out.Booking
		if sel.Application, err = tx.Applications().GetByID(ctx, a.ID); err != nil {
			return apperr.Internal("reload application", err)
		}
		if sel.Job, err = tx.Jobs().GetByID(ctx, a.JobID); err != nil {
			return apperr.Internal("reload job", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("selection unwound", "application_id", a.ID, "job_id", a.JobID, "status", to, "source", source)
	return &sel, nil
}

// ExpireSelections unpicks selections whose acceptance window has passed.
// Safe to run concurrently: each application is gated by its own
// selected -> unpicked transition.
func (s *service) ExpireSelections(ctx context.Context) (*SweepResult, error) {
	cutoff := s.now().Add(-s.window)
	stale, err := s.store.Applications().ListSelectedBefore(ctx, cutoff, 500)
	if err != nil {
		return nil, apperr.Internal("list stale selections", err)
	}
	res := &SweepResult{}
	for _, a := range stale {
		res.Processed++
		if a.BookingID == nil {
			res.Failed++
			s.log.Error("selected application has no booking", "application_id", a.ID)
			continue
		}
		sel, err := s.unwindSelection(ctx, a, models.ApplicationUnpicked, ledger.SourceSelectionExpired)
		if apperr.HasReason(err, apperr.ReasonInvalidState) {
			continue
		}
		if err != nil {
			res.Failed++
			s.log.Error("expire selection failed", "application_id", a.ID, "error", err)
			continue
		}
		res.Expired++
		s.notify(ctx, a.WorkerID, notify.KindSelectionExpired, "Selection expired",
			"You did not accept in time.", map[string]string{"jobId": a.JobID.String()})
		s.notify(ctx, sel.Booking.ClientID, notify.KindSelectionExpired, "Selection expired",
			"Your selected worker did not accept in time. Your escrow was refunded.",
			map[string]string{"jobId": a.JobID.String(), "bookingId": sel.Booking.ID.String()})
	}
	return res, nil
}

// ExpireJobs persists the expiry of open jobs past their deadline.
func (s *service) ExpireJobs(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	due, err := s.store.Jobs().ListExpiring(ctx, now, 500)
	if err != nil {
		return nil, apperr.Internal("list expiring jobs", err)
	}
	res := &SweepResult{}
	for _, j := range due {
		res.Processed++
		err := s.store.Jobs().SetStatus(ctx, j.ID, []models.JobStatus{models.JobStatusOpen}, models.JobStatusExpired, now)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			res.Failed++
			s.log.Error("expire job failed", "job_id", j.ID, "error", err)
			continue
		}
		res.Expired++
	}
	return res, nil
}
