// Package registry manages worker verification and the public worker
// directory. Verification gates who may apply to jobs.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service interface {
	ListActiveWorkers(ctx context.Context, limit int) ([]*WorkerProfile, error)
	ListWorkers(ctx context.Context, verified *bool, limit int) ([]*models.User, error)
	SetVerified(ctx context.Context, workerID uuid.UUID, verified bool) (*models.User, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (*models.User, error)
}

// WorkerProfile is the public view of a worker.
type WorkerProfile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
}

type service struct {
	users    repository.UserRepository
	notifier notify.Notifier
	log      *slog.Logger
}

func NewService(users repository.UserRepository, notifier notify.Notifier, log *slog.Logger) Service {
	return &service{users: users, notifier: notifier, log: log}
}

var _ Service = (*service)(nil)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// ListActiveWorkers returns verified, active workers.
func (s *service) ListActiveWorkers(ctx context.Context, limit int) ([]*WorkerProfile, error) {
	verified := true
	users, err := s.users.List(ctx, models.RoleWorker, &verified, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal("list workers", err)
	}
	out := make([]*WorkerProfile, 0, len(users))
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		out = append(out, &WorkerProfile{ID: u.ID, DisplayName: u.DisplayName})
	}
	return out, nil
}

func (s *service) ListWorkers(ctx context.Context, verified *bool, limit int) ([]*models.User, error) {
	users, err := s.users.List(ctx, models.RoleWorker, verified, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal("list workers", err)
	}
	return users, nil
}

func (s *service) SetVerified(ctx context.Context, workerID uuid.UUID, verified bool) (*models.User, error) {
	u, err := s.get(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleWorker {
		return nil, apperr.Validation("only workers are verified")
	}
	if u.IsVerified == verified {
		return u, nil
	}
	u, err = s.users.SetVerified(ctx, workerID, verified)
	if err != nil {
		return nil, apperr.Internal("set verification", err)
	}
	s.log.Info("worker verification changed", "worker_id", workerID, "verified", verified)
	if verified {
		s.notifier.Notify(ctx, notify.Notification{
			UserID: workerID,
			Kind:   notify.KindAccountVerified,
			Title:  "Account verified",
			Body:   "You can now apply to jobs.",
		})
	}
	return u, nil
}

// SetActive suspends or reinstates an account. Suspended workers fail the
// eligibility check; admins cannot be suspended here.
func (s *service) SetActive(ctx context.Context, userID uuid.UUID, active bool) (*models.User, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == models.RoleAdmin {
		return nil, apperr.Validation("admin accounts cannot be suspended")
	}
	u, err = s.users.SetActive(ctx, userID, active)
	if err != nil {
		return nil, apperr.Internal("set active", err)
	}
	s.log.Info("account activity changed", "user_id", userID, "active", active)
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > 100 {
		return nil, apperr.Validation("display_name must be 1 to 100 characters")
	}
	if _, err := s.get(ctx, userID); err != nil {
		return nil, err
	}
	u, err := s.users.UpdateProfile(ctx, userID, displayName)
	if err != nil {
		return nil, apperr.Internal("update profile", err)
	}
	return u, nil
}

func (s *service) get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	return u, nil
}
