package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending               BookingStatus = "pending"
	BookingConfirmed             BookingStatus = "confirmed"
	BookingAccepted              BookingStatus = "accepted"
	BookingInProgress            BookingStatus = "in_progress"
	BookingWorkerCompleted       BookingStatus = "worker_completed"
	BookingCompleted             BookingStatus = "completed"
	BookingCancelled             BookingStatus = "cancelled"
	BookingDisputed              BookingStatus = "disputed"
	BookingCancellationRequested BookingStatus = "cancellation_requested"
)

// Terminal reports whether no further workflow transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Settled() bool {
	return p == PaymentReleased || p == PaymentRefunded
}

type Booking struct {
	ID            uuid.UUID     `json:"id"`
	JobID         *uuid.UUID    `json:"job_id,omitempty"`
	ApplicationID *uuid.UUID    `json:"application_id,omitempty"`
	ClientID      uuid.UUID     `json:"client_id"`
	WorkerID      uuid.UUID     `json:"worker_id"`
	BudgetAmount  int64         `json:"budget_amount"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	CancellationRequestedBy *uuid.UUID    `json:"cancellation_requested_by,omitempty"`
	CancellationReason      string        `json:"cancellation_reason,omitempty"`
	PreviousStatus          BookingStatus `json:"previous_status,omitempty"`
	DisputeReason           string        `json:"dispute_reason,omitempty"`

	AssignedAt        time.Time  `json:"assigned_at"`
	HeldAt            *time.Time `json:"held_at,omitempty"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	WorkerCompletedAt *time.Time `json:"worker_completed_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt        *time.Time `json:"disputed_at,omitempty"`
	ReleasedAt        *time.Time `json:"released_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Stamp sets the status and, the first time the booking enters it, the
// timestamp column that records it.
func (b *Booking) Stamp(status BookingStatus, at time.Time) {
	var slot **time.Time
	switch status {
	case BookingAccepted:
		slot = &b.AcceptedAt
	case BookingInProgress:
		slot = &b.StartedAt
	case BookingWorkerCompleted:
		slot = &b.WorkerCompletedAt
	case BookingCompleted:
		slot = &b.CompletedAt
	case BookingCancelled:
		slot = &b.CancelledAt
	case BookingDisputed:
		slot = &b.DisputedAt
	}
	if slot != nil && *slot == nil {
		t := at
		*slot = &t
	}
	b.Status = status
	b.UpdatedAt = at
}

// StampPayment records a settlement.
func (b *Booking) StampPayment(ps PaymentStatus, at time.Time) {
	t := at
	switch ps {
	case PaymentHeld:
		b.HeldAt = &t
	case PaymentReleased:
		b.ReleasedAt = &t
	case PaymentRefunded:
		b.RefundedAt = &t
	}
	b.PaymentStatus = ps
	b.UpdatedAt = at
}

// IsParticipant reports whether userID is the client or the worker.
func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return b.ClientID == userID || b.WorkerID == userID
}

// Counterparty returns the other participant. userID must be a participant.
func (b *Booking) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == b.ClientID {
		return b.WorkerID
	}
	return b.ClientID
}
