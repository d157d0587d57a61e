// Package eligibility answers whether a worker may take jobs. Verification
// itself happens elsewhere; this reads the resulting flags.
package eligibility

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type Checker interface {
	IsVerifiedAndActive(ctx context.Context, workerID uuid.UUID) (bool, error)
}

type UserChecker struct {
	users repository.UserRepository
}

var _ Checker = (*UserChecker)(nil)

func NewUserChecker(users repository.UserRepository) *UserChecker {
	return &UserChecker{users: users}
}

func (c *UserChecker) IsVerifiedAndActive(ctx context.Context, workerID uuid.UUID) (bool, error) {
	u, err := c.users.GetByID(ctx, workerID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == models.RoleWorker && u.IsVerified && u.IsActive, nil
}
