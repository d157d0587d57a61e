package models

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationSelected  ApplicationStatus = "selected"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationDeclined  ApplicationStatus = "declined"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
	ApplicationUnpicked  ApplicationStatus = "unpicked"
)

type Application struct {
	ID          uuid.UUID         `json:"id"`
	JobID       uuid.UUID         `json:"job_id"`
	WorkerID    uuid.UUID         `json:"worker_id"`
	Message     string            `json:"message,omitempty"`
	Status      ApplicationStatus `json:"status"`
	BookingID   *uuid.UUID        `json:"booking_id,omitempty"`
	AppliedAt   time.Time         `json:"applied_at"`
	SelectedAt  *time.Time        `json:"selected_at,omitempty"`
	AcceptedAt  *time.Time        `json:"accepted_at,omitempty"`
	DeclinedAt  *time.Time        `json:"declined_at,omitempty"`
	WithdrawnAt *time.Time        `json:"withdrawn_at,omitempty"`
	UnpickedAt  *time.Time        `json:"unpicked_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Stamp sets the timestamp that belongs to status.
func (a *Application) Stamp(status ApplicationStatus, at time.Time) {
	t := at
	switch status {
	case ApplicationSelected:
		a.SelectedAt = &t
	case ApplicationAccepted:
		a.AcceptedAt = &t
	case ApplicationDeclined:
		a.DeclinedAt = &t
	case ApplicationWithdrawn:
		a.WithdrawnAt = &t
	case ApplicationUnpicked:
		a.UnpickedAt = &t
	}
	a.Status = status
	a.UpdatedAt = at
}

// SelectionDeadline is when a selected application stops being acceptable.
func (a *Application) SelectionDeadline(window time.Duration) time.Time {
	if a.SelectedAt == nil {
		return time.Time{}
	}
	return a.SelectedAt.Add(window)
}
