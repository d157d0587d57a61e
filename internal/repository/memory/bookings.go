package memory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(_ context.Context, b *models.Booking) error {
	defer r.s.lock()()
	if _, ok := r.s.st().bookings[b.ID]; ok {
		return repository.ErrDuplicate
	}
	b.UpdatedAt = b.CreatedAt
	r.s.st().bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	defer r.s.lock()()
	b, ok := r.s.st().bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	defer r.s.lock()()
	var out []*models.Booking
	for _, b := range r.s.st().bookings {
		if b.IsParticipant(userID) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r bookingRepo) Save(_ context.Context, b *models.Booking, expected models.BookingStatus) error {
	defer r.s.lock()()
	cur, ok := r.s.st().bookings[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected || cur.PaymentStatus != b.PaymentStatus {
		return repository.ErrConflict
	}
	next := *b
	// payment columns are only written by Settle
	next.PaymentStatus, next.HeldAt, next.ReleasedAt, next.RefundedAt = cur.PaymentStatus, cur.HeldAt, cur.ReleasedAt, cur.RefundedAt
	r.s.st().bookings[b.ID] = next
	return nil
}

func (r bookingRepo) Settle(_ context.Context, id uuid.UUID, from []models.BookingStatus, to models.BookingStatus, payment models.PaymentStatus, at time.Time) (*models.Booking, error) {
	defer r.s.lock()()
	b, ok := r.s.st().bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.PaymentStatus != models.PaymentHeld || !slices.Contains(from, b.Status) {
		return nil, repository.ErrConflict
	}
	b.Stamp(to, at)
	b.StampPayment(payment, at)
	r.s.st().bookings[id] = b
	return &b, nil
}

func (r bookingRepo) ListHeld(_ context.Context, statuses []models.BookingStatus, after *repository.Cursor, limit int) ([]*models.Booking, error) {
	defer r.s.lock()()
	var out []*models.Booking
	for _, b := range r.s.st().bookings {
		if b.PaymentStatus != models.PaymentHeld || !slices.Contains(statuses, b.Status) {
			continue
		}
		if after != nil && compareKey(b.CreatedAt, b.ID, after.CreatedAt, after.ID) <= 0 {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareKey(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) < 0
	})
	return truncate(out, limit), nil
}

// compareKey orders by time then id bytes, matching Postgres row comparison.
func compareKey(at time.Time, id uuid.UUID, bt time.Time, bid uuid.UUID) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return bytes.Compare(id[:], bid[:])
}

func (r bookingRepo) SumHeld(_ context.Context) (int64, error) {
	defer r.s.lock()()
	var sum int64
	for _, b := range r.s.st().bookings {
		if b.PaymentStatus == models.PaymentHeld {
			sum += b.BudgetAmount
		}
	}
	return sum, nil
}
