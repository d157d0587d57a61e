package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type jobRepo struct{ s *Store }

func (r jobRepo) Create(_ context.Context, j *models.Job) error {
	defer r.s.lock()()
	if _, ok := r.s.st().jobs[j.ID]; ok {
		return repository.ErrDuplicate
	}
	j.UpdatedAt = j.CreatedAt
	r.s.st().jobs[j.ID] = *j
	return nil
}

func (r jobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	defer r.s.lock()()
	j, ok := r.s.st().jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (r jobRepo) filter(keep func(models.Job) bool) []*models.Job {
	var out []*models.Job
	for _, j := range r.s.st().jobs {
		if keep(j) {
			j := j
			out = append(out, &j)
		}
	}
	return out
}

func (r jobRepo) ListOpen(_ context.Context, category string, now time.Time, limit int) ([]*models.Job, error) {
	defer r.s.lock()()
	out := r.filter(func(j models.Job) bool {
		return j.Status == models.JobStatusOpen && !j.ExpiredAt(now) && (category == "" || j.Category == category)
	})
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return truncate(out, limit), nil
}

func (r jobRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	defer r.s.lock()()
	out := r.filter(func(j models.Job) bool { return j.ClientID == clientID })
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (r jobRepo) Assign(_ context.Context, id, workerID uuid.UUID, at time.Time) (*models.Job, error) {
	defer r.s.lock()()
	j, ok := r.s.st().jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if j.Status != models.JobStatusOpen {
		return nil, repository.ErrConflict
	}
	w, t := workerID, at
	j.Status, j.AssignedWorkerID, j.AssignedAt, j.UpdatedAt = models.JobStatusAssigned, &w, &t, at
	r.s.st().jobs[id] = j
	return &j, nil
}

func (r jobRepo) Reopen(_ context.Context, id, workerID uuid.UUID, at time.Time) error {
	defer r.s.lock()()
	j, ok := r.s.st().jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if j.AssignedWorkerID == nil || *j.AssignedWorkerID != workerID ||
		(j.Status != models.JobStatusAssigned && j.Status != models.JobStatusInProgress) {
		return repository.ErrConflict
	}
	j.Status, j.AssignedWorkerID, j.AssignedAt, j.UpdatedAt = models.JobStatusOpen, nil, nil, at
	r.s.st().jobs[id] = j
	return nil
}

func (r jobRepo) SetStatus(_ context.Context, id uuid.UUID, from []models.JobStatus, to models.JobStatus, at time.Time) error {
	defer r.s.lock()()
	j, ok := r.s.st().jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !slices.Contains(from, j.Status) {
		return repository.ErrConflict
	}
	j.Status, j.UpdatedAt = to, at
	r.s.st().jobs[id] = j
	return nil
}

func (r jobRepo) AdjustApplicantCount(_ context.Context, id uuid.UUID, delta int) error {
	defer r.s.lock()()
	j, ok := r.s.st().jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.ApplicantCount = max(j.ApplicantCount+delta, 0)
	r.s.st().jobs[id] = j
	return nil
}

func (r jobRepo) ListExpiring(_ context.Context, now time.Time, limit int) ([]*models.Job, error) {
	defer r.s.lock()()
	out := r.filter(func(j models.Job) bool { return j.Status == models.JobStatusOpen && j.ExpiredAt(now) })
	sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(*out[b].ExpiresAt) })
	return truncate(out, limit), nil
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
