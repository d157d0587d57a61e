package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type ruleRepo struct{ s *Store }

func (r ruleRepo) List(_ context.Context, enabledOnly bool) ([]*models.AutoReleaseRule, error) {
	defer r.s.lock()()
	var out []*models.AutoReleaseRule
	for _, rule := range r.s.st().rules {
		if enabledOnly && !rule.Enabled {
			continue
		}
		rule := rule
		out = append(out, &rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r ruleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.AutoReleaseRule, error) {
	defer r.s.lock()()
	rule, ok := r.s.st().rules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rule, nil
}

func (r ruleRepo) Create(_ context.Context, rule *models.AutoReleaseRule) error {
	defer r.s.lock()()
	if _, ok := r.s.st().rules[rule.ID]; ok {
		return repository.ErrDuplicate
	}
	rule.UpdatedAt = rule.CreatedAt
	r.s.st().rules[rule.ID] = *rule
	return nil
}

func (r ruleRepo) Update(_ context.Context, rule *models.AutoReleaseRule) error {
	defer r.s.lock()()
	if _, ok := r.s.st().rules[rule.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.st().rules[rule.ID] = *rule
	return nil
}

func (r ruleRepo) Count(_ context.Context) (int, error) {
	defer r.s.lock()()
	return len(r.s.st().rules), nil
}

type releaseLogRepo struct{ s *Store }

func (r releaseLogRepo) Append(_ context.Context, l *models.AutoReleaseLog) error {
	defer r.s.lock()()
	r.s.st().logs = append(r.s.st().logs, *l)
	return nil
}

func (r releaseLogRepo) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]*models.AutoReleaseLog, error) {
	defer r.s.lock()()
	var out []*models.AutoReleaseLog
	for _, l := range r.s.st().logs {
		if l.BookingID == bookingID {
			l := l
			out = append(out, &l)
		}
	}
	return out, nil
}

func (r releaseLogRepo) ListRecent(_ context.Context, limit int) ([]*models.AutoReleaseLog, error) {
	defer r.s.lock()()
	logs := r.s.st().logs
	var out []*models.AutoReleaseLog
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		out = append(out, &l)
	}
	return truncate(out, limit), nil
}

func (r releaseLogRepo) Exists(_ context.Context, bookingID, ruleID uuid.UUID, action string) (bool, error) {
	defer r.s.lock()()
	for _, l := range r.s.st().logs {
		if l.BookingID == bookingID && l.RuleID == ruleID && l.Action == action {
			return true, nil
		}
	}
	return false, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *models.User) error {
	defer r.s.lock()()
	for _, existing := range r.s.st().users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.st().users[u.ID] = *u
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st().users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st().users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) List(_ context.Context, role string, verified *bool, limit int) ([]*models.User, error) {
	defer r.s.lock()()
	var out []*models.User
	for _, u := range r.s.st().users {
		if role != "" && u.Role != role {
			continue
		}
		if verified != nil && u.IsVerified != *verified {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r userRepo) update(id uuid.UUID, fn func(*models.User)) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st().users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.s.st().users[id] = u
	return &u, nil
}

func (r userRepo) SetVerified(_ context.Context, id uuid.UUID, verified bool) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.IsVerified = verified })
}

func (r userRepo) SetActive(_ context.Context, id uuid.UUID, active bool) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.IsActive = active })
}

func (r userRepo) UpdateProfile(_ context.Context, id uuid.UUID, displayName string) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.DisplayName = displayName })
}
