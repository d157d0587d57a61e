package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/eligibility"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/metrics"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

const DefaultAcceptanceWindow = time.Hour

type CreateJobInput struct {
	Title       string
	Description string
	Category    string
	Budget      models.Budget
	ExpiresAt   *time.Time
}

// Selection is returned to the client after a successful selectWorker.
type Selection struct {
	Job         *models.Job         `json:"job"`
	Application *models.Application `json:"application"`
	Booking     *models.Booking     `json:"booking"`
}

type SweepResult struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

type Service interface {
	CreateJob(ctx context.Context, clientID uuid.UUID, in CreateJobInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListOpenJobs(ctx context.Context, category string, limit int) ([]*models.Job, error)
	ListClientJobs(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	CancelJob(ctx context.Context, jobID, clientID uuid.UUID) (*models.Job, error)

	ApplyToJob(ctx context.Context, jobID, workerID uuid.UUID, message string) (*models.Application, error)
	WithdrawApplication(ctx context.Context, applicationID, workerID uuid.UUID) (*models.Application, error)
	ListJobApplications(ctx context.Context, jobID, clientID uuid.UUID) ([]*models.Application, error)
	ListWorkerApplications(ctx context.Context, workerID uuid.UUID) ([]*models.Application, error)

	SelectWorker(ctx context.Context, jobID, applicationID, clientID uuid.UUID) (*Selection, error)
	AcceptSelection(ctx context.Context, applicationID, workerID uuid.UUID) (*Selection, error)
	DeclineSelection(ctx context.Context, applicationID, workerID uuid.UUID) (*Selection, error)

	ExpireSelections(ctx context.Context) (*SweepResult, error)
	ExpireJobs(ctx context.Context) (*SweepResult, error)
}

type service struct {
	store    repository.Store
	ledger   ledger.Service
	eligible eligibility.Checker
	notifier notify.Notifier
	metrics  *metrics.Collector
	log      *slog.Logger
	window   time.Duration
	now      func() time.Time
}

var _ Service = (*service)(nil)

type Option func(*service)

func WithAcceptanceWindow(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func WithMetrics(m *metrics.Collector) Option { return func(s *service) { s.metrics = m } }

func NewService(store repository.Store, l ledger.Service, eligible eligibility.Checker, notifier notify.Notifier, log *slog.Logger, opts ...Option) Service {
	s := &service{
		store:    store,
		ledger:   l,
		eligible: eligible,
		notifier: notifier,
		log:      log,
		window:   DefaultAcceptanceWindow,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateJob(ctx context.Context, clientID uuid.UUID, in CreateJobInput) (*models.Job, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if err := validateBudget(in.Budget); err != nil {
		return nil, err
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, apperr.Validation("expires_at must be in the future")
	}
	j := &models.Job{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Budget:      in.Budget,
		Status:      models.JobStatusOpen,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
	}
	if err := s.store.Jobs().Create(ctx, j); err != nil {
		return nil, apperr.Internal("create job", err)
	}
	s.log.Info("job created", "job_id", j.ID, "client_id", clientID, "hold_amount", j.Budget.HoldAmount())
	return j, nil
}

func validateBudget(b models.Budget) error {
	switch {
	case b.Amount < 0 || b.Min < 0 || b.Max < 0:
		return apperr.Validation("budget values must not be negative")
	case b.Amount > 0 && (b.Min > 0 || b.Max > 0):
		return apperr.Validation("budget is either a fixed amount or a range")
	case b.Amount == 0 && b.Max == 0:
		return apperr.Validation("budget is required")
	case b.IsRange() && (b.Min <= 0 || b.Min > b.Max):
		return apperr.Validation("budget range needs 0 < min <= max")
	}
	return nil
}

func (s *service) getJob(ctx context.Context, store repository.Store, jobID uuid.UUID) (*models.Job, error) {
	j, err := store.Jobs().GetByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("job not found")
	}
	if err != nil {
		return nil, apperr.Internal("load job", err)
	}
	return j, nil
}

func (s *service) getApplication(ctx context.Context, store repository.Store, id uuid.UUID) (*models.Application, error) {
	a, err := store.Applications().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("application not found")
	}
	if err != nil {
		return nil, apperr.Internal("load application", err)
	}
	return a, nil
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.getJob(ctx, s.store, jobID)
}

func (s *service) ListOpenJobs(ctx context.Context, category string, limit int) ([]*models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.store.Jobs().ListOpen(ctx, strings.ToLower(category), s.now(), limit)
	if err != nil {
		return nil, apperr.Internal("list open jobs", err)
	}
	return list, nil
}

func (s *service) ListClientJobs(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	list, err := s.store.Jobs().ListByClient(ctx, clientID)
	if err != nil {
		return nil, apperr.Internal("list client jobs", err)
	}
	return list, nil
}

// CancelJob withdraws an open job. Nothing is held while a job is open, so
// no money moves.
func (s *service) CancelJob(ctx context.Context, jobID, clientID uuid.UUID) (*models.Job, error) {
	j, err := s.getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientID != clientID {
		return nil, apperr.Unauthorized("only the job owner can cancel it")
	}
	err = s.store.Jobs().SetStatus(ctx, jobID, []models.JobStatus{models.JobStatusOpen}, models.JobStatusCancelled, s.now())
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperr.JobNotOpen(fmt.Sprintf("job is %s", j.Status))
	}
	if err != nil {
		return nil, apperr.Internal("cancel job", err)
	}
	return s.getJob(ctx, s.store, jobID)
}

func (s *service) ApplyToJob(ctx context.Context, jobID, workerID uuid.UUID, message string) (*models.Application, error) {
	j, err := s.getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if j.Status != models.JobStatusOpen || j.ExpiredAt(now) {
		return nil, apperr.JobNotOpen("job is not accepting applications")
	}
	if j.ClientID == workerID {
		return nil, apperr.Unauthorized("cannot apply to your own job")
	}
	if err := s.checkEligible(ctx, workerID); err != nil {
		return nil, err
	}

	a := &models.Application{
		ID:        uuid.New(),
		JobID:     jobID,
		WorkerID:  workerID,
		Message:   strings.TrimSpace(message),
		Status:    models.ApplicationPending,
		AppliedAt: now,
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Applications().Create(ctx, a); err != nil {
			return err
		}
		return tx.Jobs().AdjustApplicantCount(ctx, jobID, 1)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.AlreadyApplied("worker already applied to this job")
	}
	if err != nil {
		return nil, apperr.Internal("create application", err)
	}
	return a, nil
}

func (s *service) WithdrawApplication(ctx context.Context, applicationID, workerID uuid.UUID) (*models.Application, error) {
	a, err := s.getApplication(ctx, s.store, applicationID)
	if err != nil {
		return nil, err
	}
	if a.WorkerID != workerID {
		return nil, apperr.Unauthorized("not your application")
	}
	if a.Status != models.ApplicationPending {
		return nil, apperr.InvalidState(fmt.Sprintf("application is %s", a.Status))
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Applications().Transition(ctx, a.ID, models.ApplicationPending, models.ApplicationWithdrawn, s.now()); err != nil {
			return err
		}
		return tx.Jobs().AdjustApplicantCount(ctx, a.JobID, -1)
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperr.InvalidState("application is no longer pending")
	}
	if err != nil {
		return nil, apperr.Internal("withdraw application", err)
	}
	return s.getApplication(ctx, s.store, applicationID)
}

func (s *service) ListJobApplications(ctx context.Context, jobID, clientID uuid.UUID) ([]*models.Application, error) {
	j, err := s.getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientID != clientID {
		return nil, apperr.Unauthorized("only the job owner can list applications")
	}
	list, err := s.store.Applications().ListByJob(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal("list applications", err)
	}
	return list, nil
}

func (s *service) ListWorkerApplications(ctx context.Context, workerID uuid.UUID) ([]*models.Application, error) {
	list, err := s.store.Applications().ListByWorker(ctx, workerID)
	if err != nil {
		return nil, apperr.Internal("list applications", err)
	}
	return list, nil
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, kind, title, body string, data map[string]string) {
	s.notifier.Notify(ctx, notify.Notification{UserID: userID, Kind: kind, Title: title, Body: body, Data: data})
}

func (s *service) checkEligible(ctx context.Context, workerID uuid.UUID) error {
	ok, err := s.eligible.IsVerifiedAndActive(ctx, workerID)
	if err != nil {
		return apperr.Internal("check worker eligibility", err)
	}
	if !ok {
		return apperr.New(apperr.ReasonWorkerIneligible, "worker is not verified or not active")
	}
	return nil
}
