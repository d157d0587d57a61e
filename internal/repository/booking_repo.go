package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type BookingRepo struct {
	db DBTX
}

const bookingColumns = `id, job_id, application_id, client_id, worker_id, budget_amount, status, payment_status,
	cancellation_requested_by, cancellation_reason, previous_status, dispute_reason,
	assigned_at, held_at, accepted_at, started_at, worker_completed_at, completed_at, cancelled_at, disputed_at, released_at, refunded_at,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.JobID, &b.ApplicationID, &b.ClientID, &b.WorkerID, &b.BudgetAmount, &b.Status, &b.PaymentStatus,
		&b.CancellationRequestedBy, &b.CancellationReason, &b.PreviousStatus, &b.DisputeReason,
		&b.AssignedAt, &b.HeldAt, &b.AcceptedAt, &b.StartedAt, &b.WorkerCompletedAt, &b.CompletedAt, &b.CancelledAt, &b.DisputedAt, &b.ReleasedAt, &b.RefundedAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]*models.Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *BookingRepo) Create(ctx context.Context, b *models.Booking) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bookings (id, job_id, application_id, client_id, worker_id, budget_amount, status, payment_status, assigned_at, held_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, b.ID, b.JobID, b.ApplicationID, b.ClientID, b.WorkerID, b.BudgetAmount, b.Status, b.PaymentStatus, b.AssignedAt, b.HeldAt, b.CreatedAt)
	return mapErr(err)
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE client_id = $1 OR worker_id = $1 ORDER BY created_at DESC
	`, userID)
	return collectBookings(rows, err)
}

// Save writes the workflow columns. Payment columns are owned by Settle and
// only act as a guard here.
func (r *BookingRepo) Save(ctx context.Context, b *models.Booking, expected models.BookingStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings SET
			status = $3, cancellation_requested_by = $4, cancellation_reason = $5, previous_status = $6, dispute_reason = $7,
			accepted_at = $8, started_at = $9, worker_completed_at = $10, completed_at = $11, cancelled_at = $12, disputed_at = $13,
			updated_at = $14
		WHERE id = $1 AND status = $2 AND payment_status = $15
	`, b.ID, expected, b.Status, b.CancellationRequestedBy, b.CancellationReason, b.PreviousStatus, b.DisputeReason,
		b.AcceptedAt, b.StartedAt, b.WorkerCompletedAt, b.CompletedAt, b.CancelledAt, b.DisputedAt,
		b.UpdatedAt, b.PaymentStatus)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *BookingRepo) Settle(ctx context.Context, id uuid.UUID, from []models.BookingStatus, to models.BookingStatus, payment models.PaymentStatus, at time.Time) (*models.Booking, error) {
	var statusCol, paymentCol string
	switch to {
	case models.BookingCompleted:
		statusCol = "completed_at"
	case models.BookingCancelled:
		statusCol = "cancelled_at"
	default:
		return nil, ErrConflict
	}
	switch payment {
	case models.PaymentReleased:
		paymentCol = "released_at"
	case models.PaymentRefunded:
		paymentCol = "refunded_at"
	default:
		return nil, ErrConflict
	}
	b, err := scanBooking(r.db.QueryRow(ctx, `
		UPDATE bookings SET status = $2, payment_status = $3, `+statusCol+` = $4, `+paymentCol+` = $4, updated_at = $4
		WHERE id = $1 AND payment_status = 'held' AND status = ANY($5)
		RETURNING `+bookingColumns, id, to, payment, at, bookingStatusStrings(from)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return b, err
}

func (r *BookingRepo) ListHeld(ctx context.Context, statuses []models.BookingStatus, after *Cursor, limit int) ([]*models.Booking, error) {
	if after == nil {
		rows, err := r.db.Query(ctx, `
			SELECT `+bookingColumns+` FROM bookings
			WHERE payment_status = 'held' AND status = ANY($1)
			ORDER BY created_at, id LIMIT $2
		`, bookingStatusStrings(statuses), limit)
		return collectBookings(rows, err)
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE payment_status = 'held' AND status = ANY($1) AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id LIMIT $4
	`, bookingStatusStrings(statuses), after.CreatedAt, after.ID, limit)
	return collectBookings(rows, err)
}

func (r *BookingRepo) SumHeld(ctx context.Context) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(budget_amount), 0) FROM bookings WHERE payment_status = 'held'`).Scan(&sum)
	return sum, err
}

func bookingStatusStrings(in []models.BookingStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
