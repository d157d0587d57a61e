package autorelease

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/respond"
)

type Handler struct {
	engine Engine
	log    *slog.Logger
}

func NewHandler(e Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: e, log: log}
}

// RunSweep triggers the same sweep the scheduler runs.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RunSweep(r.Context())
	if err != nil {
		respond.Error(w, h.log, apperr.Internal("auto-release sweep", err))
		return
	}
	respond.OK(w, res)
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.ListRules(r.Context())
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, rules)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var in RuleInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	rule, err := h.engine.CreateRule(r.Context(), in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Created(w, rule)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	var in RuleInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	rule, err := h.engine.UpdateRule(r.Context(), id, in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, rule)
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var bookingID *uuid.UUID
	if raw := q.Get("booking_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respond.Error(w, h.log, apperr.Validation("invalid booking_id"))
			return
		}
		bookingID = &id
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	logs, err := h.engine.ListLogs(r.Context(), bookingID, limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, logs)
}
