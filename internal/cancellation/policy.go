// Package cancellation implements the worker's right to walk away from a
// booking once it has been held for long enough.
package cancellation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/booking"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

const DefaultWindow = 24 * time.Hour

// Eligibility is the answer to "may this worker cancel now?".
type Eligibility struct {
	CanCancel      bool    `json:"can_cancel"`
	Reason         string  `json:"reason,omitempty"`
	HoursElapsed   float64 `json:"hours_elapsed"`
	HoursRemaining float64 `json:"hours_remaining"`
}

type Policy interface {
	CanCancel(ctx context.Context, bookingID, workerID uuid.UUID) (*Eligibility, error)
	CancelAsWorker(ctx context.Context, bookingID, workerID uuid.UUID, reason string) (*ledger.Outcome, error)
}

type policy struct {
	store    repository.Store
	ledger   ledger.Service
	notifier notify.Notifier
	log      *slog.Logger
	window   time.Duration
	now      func() time.Time
}

var _ Policy = (*policy)(nil)

type Option func(*policy)

func WithWindow(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.window = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(p *policy) { p.now = now } }

func NewPolicy(store repository.Store, l ledger.Service, notifier notify.Notifier, log *slog.Logger, opts ...Option) Policy {
	p := &policy{
		store:    store,
		ledger:   l,
		notifier: notifier,
		log:      log,
		window:   DefaultWindow,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *policy) CanCancel(ctx context.Context, bookingID, workerID uuid.UUID) (*Eligibility, error) {
	b, err := booking.Load(ctx, p.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	return p.evaluate(b, workerID), nil
}

// evaluate applies the rule to a loaded booking. Elapsed time counts from
// assignment.
func (p *policy) evaluate(b *models.Booking, workerID uuid.UUID) *Eligibility {
	if b.WorkerID != workerID {
		return &Eligibility{Reason: "not the assigned worker"}
	}
	if b.Status.Terminal() || b.Status == models.BookingDisputed {
		return &Eligibility{Reason: fmt.Sprintf("booking is %s", b.Status)}
	}
	elapsed := p.now().Sub(b.AssignedAt)
	e := &Eligibility{HoursElapsed: floorHours(elapsed)}
	if elapsed < p.window {
		e.HoursRemaining = remainingHours(p.window, e.HoursElapsed)
		e.Reason = fmt.Sprintf("cancellation opens %s after assignment", p.window)
		return e
	}
	e.CanCancel = true
	return e
}

// CancelAsWorker cancels the booking with a full refund to the client, marks
// the worker's application declined so they cannot be reselected, and puts
// the job back in the open pool with its other applicants intact.
func (p *policy) CancelAsWorker(ctx context.Context, bookingID, workerID uuid.UUID, reason string) (*ledger.Outcome, error) {
	b, err := booking.Load(ctx, p.store.Bookings(), bookingID)
	if err != nil {
		return nil, err
	}
	e := p.evaluate(b, workerID)
	switch {
	case b.WorkerID != workerID:
		return nil, apperr.Unauthorized("only the assigned worker can cancel")
	case e.CanCancel:
	case e.HoursRemaining > 0:
		return nil, apperr.New(apperr.ReasonCancellationTooEarly, e.Reason).
			With("hoursRemaining", e.HoursRemaining).
			With("hoursElapsed", e.HoursElapsed)
	default:
		return nil, apperr.InvalidState(e.Reason).With("status", b.Status)
	}

	reason = strings.TrimSpace(reason)
	now := p.now()
	var out *ledger.Outcome
	err = p.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		out, err = p.ledger.RefundEscrow(ctx, tx, ledger.Request{
			BookingID: b.ID,
			Reason:    "worker cancelled: " + reason,
			Source:    ledger.SourceWorkerCancellation,
			From:      booking.SettleFrom(ledger.SourceWorkerCancellation),
		})
		if err != nil || out.AlreadySettled {
			return err
		}
		return booking.ReleaseWorker(ctx, tx, out.Booking, models.ApplicationDeclined, now)
	})
	if err != nil {
		return nil, err
	}
	if out.AlreadySettled {
		return out, nil
	}
	p.log.Info("worker cancelled booking",
		"booking_id", b.ID, "worker_id", workerID, "hours_elapsed", e.HoursElapsed, "reason", reason)
	p.notifier.Notify(ctx, notify.Notification{
		UserID: b.ClientID,
		Kind:   notify.KindWorkerCancelled,
		Title:  "Worker cancelled",
		Body:   "Your worker cancelled. Your escrow was refunded and the job is open for new applicants.",
		Data:   map[string]string{"bookingId": b.ID.String(), "reason": reason},
	})
	return out, nil
}

// floorHours truncates to 0.1h so the elapsed figure never reaches the
// window before the window has actually passed.
func floorHours(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return math.Floor(d.Hours()*10) / 10
}

// remainingHours is derived from the reported elapsed figure so the two
// always add up to the window.
func remainingHours(window time.Duration, elapsed float64) float64 {
	return math.Round((window.Hours()-elapsed)*100) / 100
}
