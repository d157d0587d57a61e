// Package respond writes the JSON envelope every API route returns.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
)

type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Reason  apperr.Reason  `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

const maxBody = 1 << 20

var statusByReason = map[apperr.Reason]int{
	apperr.ReasonValidation:           http.StatusBadRequest,
	apperr.ReasonUnauthorized:         http.StatusForbidden,
	apperr.ReasonNotFound:             http.StatusNotFound,
	apperr.ReasonInvalidState:         http.StatusConflict,
	apperr.ReasonAlreadyApplied:       http.StatusConflict,
	apperr.ReasonNoLongerAvailable:    http.StatusConflict,
	apperr.ReasonJobNotOpen:           http.StatusConflict,
	apperr.ReasonSelectionExpired:     http.StatusGone,
	apperr.ReasonCancellationTooEarly: http.StatusUnprocessableEntity,
	apperr.ReasonWorkerIneligible:     http.StatusForbidden,
	apperr.ReasonInsufficientFunds:    http.StatusPaymentRequired,
	apperr.ReasonProviderError:        http.StatusBadGateway,
	apperr.ReasonInternal:             http.StatusInternalServerError,
}

// Status maps a reason to its HTTP status code.
func Status(reason apperr.Reason) int {
	if code, ok := statusByReason[reason]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error writes err as a failure envelope. Internal errors are logged and
// their cause is not exposed.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal("internal error", err)
	}
	status := Status(e.Reason)
	msg := e.Message
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", "reason", e.Reason, "error", err)
		}
		if e.Reason == apperr.ReasonInternal {
			msg = "internal error"
		}
	}
	JSON(w, status, Envelope{Success: false, Message: msg, Reason: e.Reason, Details: e.Details})
}

// Unauthenticated is written when no valid bearer token was presented.
func Unauthenticated(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, Envelope{Success: false, Message: "authentication required", Reason: apperr.ReasonUnauthorized})
}

// Decode reads a JSON request body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// PathID parses the named path wildcard as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid " + name)
	}
	return id, nil
}
