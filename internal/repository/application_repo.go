package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type ApplicationRepo struct {
	db DBTX
}

const applicationColumns = `id, job_id, worker_id, message, status, booking_id, applied_at, selected_at, accepted_at, declined_at, withdrawn_at, unpicked_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.JobID, &a.WorkerID, &a.Message, &a.Status, &a.BookingID, &a.AppliedAt, &a.SelectedAt, &a.AcceptedAt, &a.DeclinedAt, &a.WithdrawnAt, &a.UnpickedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func collectApplications(rows pgx.Rows, err error) ([]*models.Application, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *ApplicationRepo) Create(ctx context.Context, a *models.Application) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO applications (id, job_id, worker_id, message, status, applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, a.ID, a.JobID, a.WorkerID, a.Message, a.Status, a.AppliedAt)
	return mapErr(err)
}

func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return scanApplication(r.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

func (r *ApplicationRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE job_id = $1 ORDER BY applied_at`, jobID)
	return collectApplications(rows, err)
}

func (r *ApplicationRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE worker_id = $1 ORDER BY applied_at DESC`, workerID)
	return collectApplications(rows, err)
}

func (r *ApplicationRepo) FindByJobAndWorker(ctx context.Context, jobID, workerID uuid.UUID) (*models.Application, error) {
	return scanApplication(r.db.QueryRow(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE job_id = $1 AND worker_id = $2 AND status <> 'withdrawn'
	`, jobID, workerID))
}

// timestampColumn maps a status to the column recording when it was entered.
func timestampColumn(s models.ApplicationStatus) string {
	switch s {
	case models.ApplicationSelected:
		return "selected_at"
	case models.ApplicationAccepted:
		return "accepted_at"
	case models.ApplicationDeclined:
		return "declined_at"
	case models.ApplicationWithdrawn:
		return "withdrawn_at"
	case models.ApplicationUnpicked:
		return "unpicked_at"
	}
	return "updated_at"
}

func (r *ApplicationRepo) Transition(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE applications SET status = $3, `+timestampColumn(to)+` = $4, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *ApplicationRepo) SetBooking(ctx context.Context, id, bookingID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE applications SET booking_id = $2 WHERE id = $1`, id, bookingID)
	return err
}

func (r *ApplicationRepo) ListSelectedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Application, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE status = 'selected' AND selected_at <= $1
		ORDER BY selected_at LIMIT $2
	`, cutoff, limit)
	return collectApplications(rows, err)
}
