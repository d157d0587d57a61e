package registry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/respond"
)

type VerifyRequest struct {
	Verified bool `json:"verified"`
}

type ActiveRequest struct {
	Active bool `json:"active"`
}

type ProfileRequest struct {
	DisplayName string `json:"display_name"`
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

// GET /api/v1/workers
func (h *Handler) ListActiveWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.svc.ListActiveWorkers(r.Context(), queryInt(r, "limit"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, workers)
}

// GET /api/v1/admin/workers?verified=false
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	var verified *bool
	if v := r.URL.Query().Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respond.Error(w, h.log, apperr.Validation("verified must be true or false"))
			return
		}
		verified = &b
	}
	users, err := h.svc.ListWorkers(r.Context(), verified, queryInt(r, "limit"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, users)
}

// PUT /api/v1/admin/workers/{id}/verification
func (h *Handler) SetVerified(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var req VerifyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	u, err := h.svc.SetVerified(r.Context(), id, req.Verified)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, u)
}

// PUT /api/v1/admin/users/{id}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var req ActiveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	u, err := h.svc.SetActive(r.Context(), id, req.Active)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, u)
}

// PATCH /api/v1/me
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), middleware.UserID(r.Context()), req.DisplayName)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, u)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
