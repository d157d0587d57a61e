package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/respond"
)

type CreateJobRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Budget      models.Budget `json:"budget"`
	ExpiresAt   *time.Time    `json:"expires_at"`
}

type ApplyRequest struct {
	Message string `json:"message"`
}

type SelectRequest struct {
	ApplicationID string `json:"application_id"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	j, err := h.svc.CreateJob(r.Context(), middleware.UserID(r.Context()), CreateJobInput(req))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Created(w, j)
}

// ListJobs lists open jobs, or the caller's own jobs with ?mine=true.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		list []*models.Job
		err  error
	)
	if q.Get("mine") == "true" {
		list, err = h.svc.ListClientJobs(r.Context(), middleware.UserID(r.Context()))
	} else {
		limit, _ := strconv.Atoi(q.Get("limit"))
		list, err = h.svc.ListOpenJobs(r.Context(), q.Get("category"), limit)
	}
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, list)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	j, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, j)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	j, err := h.svc.CancelJob(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, j)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var req ApplyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	a, err := h.svc.ApplyToJob(r.Context(), id, middleware.UserID(r.Context()), req.Message)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Created(w, a)
}

func (h *Handler) ListJobApplications(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	list, err := h.svc.ListJobApplications(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, list)
}

func (h *Handler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListWorkerApplications(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, list)
}

func (h *Handler) SelectWorker(w http.ResponseWriter, r *http.Request) {
	jobID, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var req SelectRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	appID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		respond.Error(w, h.log, apperr.Validation("application_id is required"))
		return
	}
	sel, err := h.svc.SelectWorker(r.Context(), jobID, appID, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, sel)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.applicationAction(w, r, h.svc.WithdrawApplication)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.selectionAction(w, r, h.svc.AcceptSelection)
}

func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.selectionAction(w, r, h.svc.DeclineSelection)
}

func (h *Handler) applicationAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, appID, workerID uuid.UUID) (*models.Application, error)) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	a, err := fn(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, a)
}

func (h *Handler) selectionAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, appID, workerID uuid.UUID) (*Selection, error)) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	sel, err := fn(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, sel)
}
