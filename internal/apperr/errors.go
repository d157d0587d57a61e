// Package apperr defines the error taxonomy surfaced to callers. Every
// business failure carries a stable machine-readable Reason.
package apperr

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonInvalidState         Reason = "INVALID_STATE"
	ReasonUnauthorized         Reason = "UNAUTHORIZED"
	ReasonAlreadyApplied       Reason = "ALREADY_APPLIED"
	ReasonNoLongerAvailable    Reason = "NO_LONGER_AVAILABLE"
	ReasonInsufficientFunds    Reason = "INSUFFICIENT_FUNDS"
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonProviderError        Reason = "PROVIDER_ERROR"
	ReasonInternal             Reason = "INTERNAL"
	ReasonJobNotOpen           Reason = "JOB_NOT_OPEN"
	ReasonWorkerIneligible     Reason = "WORKER_INELIGIBLE"
	ReasonSelectionExpired     Reason = "SELECTION_EXPIRED"
	ReasonCancellationTooEarly Reason = "CANCELLATION_TOO_EARLY"
	ReasonValidation           Reason = "VALIDATION"
)

// Error is a business error with a stable reason and optional details
// (hoursRemaining, amountNeeded, ...) for the caller.
type Error struct {
	Reason  Reason
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by reason so errors.Is(err, apperr.NotFound("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// With returns a copy of e with key=value added to its details.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(reason Reason, msg string) *Error {
	return &Error{Reason: reason, Message: msg}
}

func Wrap(reason Reason, msg string, err error) *Error {
	return &Error{Reason: reason, Message: msg, Err: err}
}

func InvalidState(msg string) *Error      { return New(ReasonInvalidState, msg) }
func Unauthorized(msg string) *Error      { return New(ReasonUnauthorized, msg) }
func NotFound(msg string) *Error          { return New(ReasonNotFound, msg) }
func Validation(msg string) *Error        { return New(ReasonValidation, msg) }
func AlreadyApplied(msg string) *Error    { return New(ReasonAlreadyApplied, msg) }
func NoLongerAvailable(msg string) *Error { return New(ReasonNoLongerAvailable, msg) }
func JobNotOpen(msg string) *Error        { return New(ReasonJobNotOpen, msg) }

func Internal(msg string, err error) *Error { return Wrap(ReasonInternal, msg, err) }
func Provider(msg string, err error) *Error { return Wrap(ReasonProviderError, msg, err) }

// InsufficientFunds reports how much was needed and how much was spendable.
func InsufficientFunds(needed, available int64) *Error {
	return &Error{
		Reason:  ReasonInsufficientFunds,
		Message: "insufficient wallet balance",
		Details: map[string]any{"amountNeeded": needed, "available": available},
	}
}

// ReasonOf extracts the reason from err, defaulting to INTERNAL.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonInternal
}

// HasReason reports whether err carries reason r.
func HasReason(err error, r Reason) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == r
}
