package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type JobRepo struct {
	db DBTX
}

const jobColumns = `id, client_id, title, description, category, budget_amount, budget_min, budget_max, status, assigned_worker_id, applicant_count, expires_at, assigned_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Category, &j.Budget.Amount, &j.Budget.Min, &j.Budget.Max, &j.Status, &j.AssignedWorkerID, &j.ApplicantCount, &j.ExpiresAt, &j.AssignedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows, err error) ([]*models.Job, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, title, description, category, budget_amount, budget_min, budget_max, status, applicant_count, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING created_at, updated_at
	`, j.ID, j.ClientID, j.Title, j.Description, j.Category, j.Budget.Amount, j.Budget.Min, j.Budget.Max, j.Status, j.ApplicantCount, j.ExpiresAt, j.CreatedAt).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (r *JobRepo) ListOpen(ctx context.Context, category string, now time.Time, limit int) ([]*models.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'open' AND (expires_at IS NULL OR expires_at > $1) AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC LIMIT $3
	`, now, category, limit)
	return collectJobs(rows, err)
}

func (r *JobRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	return collectJobs(rows, err)
}

func (r *JobRepo) Assign(ctx context.Context, id, workerID uuid.UUID, at time.Time) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE jobs SET status = 'assigned', assigned_worker_id = $2, assigned_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+jobColumns, id, workerID, at))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return j, err
}

func (r *JobRepo) Reopen(ctx context.Context, id, workerID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = 'open', assigned_worker_id = NULL, assigned_at = NULL, updated_at = $3
		WHERE id = $1 AND assigned_worker_id = $2 AND status IN ('assigned', 'in_progress')
	`, id, workerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *JobRepo) SetStatus(ctx context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)
	`, id, to, at, jobStatusStrings(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *JobRepo) AdjustApplicantCount(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET applicant_count = GREATEST(applicant_count + $2, 0) WHERE id = $1
	`, id, delta)
	return err
}

func (r *JobRepo) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'open' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at LIMIT $2
	`, now, limit)
	return collectJobs(rows, err)
}

func jobStatusStrings(in []models.JobStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
