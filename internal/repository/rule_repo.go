package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type RuleRepo struct {
	db DBTX
}

const ruleColumns = `id, name, trigger, enabled, priority, conditions, created_at, updated_at`

func scanRule(row pgx.Row) (*models.AutoReleaseRule, error) {
	var r models.AutoReleaseRule
	var conditions []byte
	if err := row.Scan(&r.ID, &r.Name, &r.Trigger, &r.Enabled, &r.Priority, &conditions, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of rule %s: %w", r.ID, err)
	}
	return &r, nil
}

func (r *RuleRepo) List(ctx context.Context, enabledOnly bool) ([]*models.AutoReleaseRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ruleColumns+` FROM auto_release_rules
		WHERE enabled OR NOT $1
		ORDER BY priority, id
	`, enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AutoReleaseRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	return list, rows.Err()
}

func (r *RuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AutoReleaseRule, error) {
	return scanRule(r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM auto_release_rules WHERE id = $1`, id))
}

func (r *RuleRepo) Create(ctx context.Context, rule *models.AutoReleaseRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO auto_release_rules (id, name, trigger, enabled, priority, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, rule.ID, rule.Name, rule.Trigger, rule.Enabled, rule.Priority, conditions, rule.CreatedAt)
	return mapErr(err)
}

func (r *RuleRepo) Update(ctx context.Context, rule *models.AutoReleaseRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE auto_release_rules SET name = $2, trigger = $3, enabled = $4, priority = $5, conditions = $6, updated_at = $7
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Trigger, rule.Enabled, rule.Priority, conditions, rule.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RuleRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM auto_release_rules`).Scan(&n)
	return n, err
}
