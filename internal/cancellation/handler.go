package cancellation

import (
	"log/slog"
	"net/http"

	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/respond"
)

type CancelRequest struct {
	Reason string `json:"reason"`
}

type Handler struct {
	policy Policy
	log    *slog.Logger
}

func NewHandler(p Policy, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{policy: p, log: log}
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	e, err := h.policy.CanCancel(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, e)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var req CancelRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	out, err := h.policy.CancelAsWorker(r.Context(), id, middleware.UserID(r.Context()), req.Reason)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, out)
}
