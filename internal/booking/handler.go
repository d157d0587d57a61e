package booking

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/respond"
)

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type RespondRequest struct {
	Approve bool `json:"approve"`
}

type ResolveRequest struct {
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBookings(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.GetBooking(ctx, id, actor)
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.StartWork(ctx, id, actor)
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.MarkWorkerCompleted(ctx, id, actor)
	})
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.ConfirmWorkCompletion(ctx, id, actor)
	})
}

func (h *Handler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.RequestCancellation(ctx, id, actor, req.Reason)
	})
}

func (h *Handler) RespondToCancellation(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.RespondToCancellation(ctx, id, actor, req.Approve)
	})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.RequestFullRefund(ctx, id, actor, req.Reason)
	})
}

func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.OpenDispute(ctx, id, actor, req.Reason)
	})
}

func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	h.do(w, r, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.ResolveDispute(ctx, id, actor, req.Resolution, req.Note)
	})
}

func (h *Handler) do(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor uuid.UUID) (any, error)) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	out, err := fn(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, out)
}
