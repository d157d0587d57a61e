package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type applicationRepo struct{ s *Store }

func (r applicationRepo) Create(_ context.Context, a *models.Application) error {
	defer r.s.lock()()
	for _, existing := range r.s.st().applications {
		if existing.JobID == a.JobID && existing.WorkerID == a.WorkerID && existing.Status != models.ApplicationWithdrawn {
			return repository.ErrDuplicate
		}
	}
	a.UpdatedAt = a.AppliedAt
	r.s.st().applications[a.ID] = *a
	return nil
}

func (r applicationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Application, error) {
	defer r.s.lock()()
	a, ok := r.s.st().applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r applicationRepo) filter(keep func(models.Application) bool) []*models.Application {
	var out []*models.Application
	for _, a := range r.s.st().applications {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	return out
}

func (r applicationRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.Application, error) {
	defer r.s.lock()()
	out := r.filter(func(a models.Application) bool { return a.JobID == jobID })
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

func (r applicationRepo) ListByWorker(_ context.Context, workerID uuid.UUID) ([]*models.Application, error) {
	defer r.s.lock()()
	out := r.filter(func(a models.Application) bool { return a.WorkerID == workerID })
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

func (r applicationRepo) FindByJobAndWorker(_ context.Context, jobID, workerID uuid.UUID) (*models.Application, error) {
	defer r.s.lock()()
	out := r.filter(func(a models.Application) bool {
		return a.JobID == jobID && a.WorkerID == workerID && a.Status != models.ApplicationWithdrawn
	})
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return out[0], nil
}

func (r applicationRepo) Transition(_ context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time) error {
	defer r.s.lock()()
	a, ok := r.s.st().applications[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status != from {
		return repository.ErrConflict
	}
	if to == models.ApplicationSelected || to == models.ApplicationAccepted {
		for _, other := range r.s.st().applications {
			if other.ID != id && other.JobID == a.JobID &&
				(other.Status == models.ApplicationSelected || other.Status == models.ApplicationAccepted) {
				return repository.ErrDuplicate
			}
		}
	}
	a.Stamp(to, at)
	r.s.st().applications[id] = a
	return nil
}

func (r applicationRepo) SetBooking(_ context.Context, id, bookingID uuid.UUID) error {
	defer r.s.lock()()
	a, ok := r.s.st().applications[id]
	if !ok {
		return repository.ErrNotFound
	}
	b := bookingID
	a.BookingID = &b
	r.s.st().applications[id] = a
	return nil
}

func (r applicationRepo) ListSelectedBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.Application, error) {
	defer r.s.lock()()
	out := r.filter(func(a models.Application) bool {
		return a.Status == models.ApplicationSelected && a.SelectedAt != nil && !a.SelectedAt.After(cutoff)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SelectedAt.Before(*out[j].SelectedAt) })
	return truncate(out, limit), nil
}
