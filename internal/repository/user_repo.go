package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gighire/backend/internal/models"
)

type UserRepo struct {
	db DBTX
}

const userColumns = `id, email, display_name, password_hash, role, is_verified, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.IsVerified, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, is_verified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.Role, u.IsVerified, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapErr(err)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) List(ctx context.Context, role string, verified *bool, limit int) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR role = $1) AND ($2::boolean IS NULL OR is_verified = $2)
		ORDER BY created_at, id
		LIMIT $3
	`, role, verified, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET is_verified = $2, updated_at = now() WHERE id = $1
		RETURNING `+userColumns, id, verified))
}

func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1
		RETURNING `+userColumns, id, active))
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET display_name = $2, updated_at = now() WHERE id = $1
		RETURNING `+userColumns, id, displayName))
}
