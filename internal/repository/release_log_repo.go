package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type ReleaseLogRepo struct {
	db DBTX
}

const releaseLogColumns = `id, booking_id, rule_id, action, reason, error, metadata, scheduled_at, executed_at, created_at`

func scanReleaseLog(row pgx.Row) (*models.AutoReleaseLog, error) {
	var l models.AutoReleaseLog
	var metadata []byte
	if err := row.Scan(&l.ID, &l.BookingID, &l.RuleID, &l.Action, &l.Reason, &l.Error, &metadata, &l.ScheduledAt, &l.ExecutedAt, &l.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &l.Metadata); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

func (r *ReleaseLogRepo) Append(ctx context.Context, l *models.AutoReleaseLog) error {
	metadata, err := json.Marshal(l.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO auto_release_logs (id, booking_id, rule_id, action, reason, error, metadata, scheduled_at, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, l.ID, l.BookingID, l.RuleID, l.Action, l.Reason, l.Error, metadata, l.ScheduledAt, l.ExecutedAt, l.CreatedAt)
	return mapErr(err)
}

func (r *ReleaseLogRepo) list(ctx context.Context, sql string, args ...any) ([]*models.AutoReleaseLog, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AutoReleaseLog
	for rows.Next() {
		l, err := scanReleaseLog(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func (r *ReleaseLogRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.AutoReleaseLog, error) {
	return r.list(ctx, `SELECT `+releaseLogColumns+` FROM auto_release_logs WHERE booking_id = $1 ORDER BY created_at`, bookingID)
}

func (r *ReleaseLogRepo) ListRecent(ctx context.Context, limit int) ([]*models.AutoReleaseLog, error) {
	return r.list(ctx, `SELECT `+releaseLogColumns+` FROM auto_release_logs ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *ReleaseLogRepo) Exists(ctx context.Context, bookingID, ruleID uuid.UUID, action string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM auto_release_logs WHERE booking_id = $1 AND rule_id = $2 AND action = $3)
	`, bookingID, ruleID, action).Scan(&exists)
	return exists, err
}
