package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusExpired    JobStatus = "expired"
)

// Budget is either a fixed Amount or a Min/Max range, in kobo.
type Budget struct {
	Amount int64 `json:"amount,omitempty"`
	Min    int64 `json:"min,omitempty"`
	Max    int64 `json:"max,omitempty"`
}

// IsRange reports whether the client posted a range instead of a fixed amount.
func (b Budget) IsRange() bool { return b.Amount == 0 && b.Max > 0 }

// HoldAmount is what gets escrowed when a worker is selected. Ranges hold the
// upper bound so the escrow always covers the agreed price.
func (b Budget) HoldAmount() int64 {
	if b.IsRange() {
		return b.Max
	}
	return b.Amount
}

type Job struct {
	ID               uuid.UUID  `json:"id"`
	ClientID         uuid.UUID  `json:"client_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Category         string     `json:"category"`
	Budget           Budget     `json:"budget"`
	Status           JobStatus  `json:"status"`
	AssignedWorkerID *uuid.UUID `json:"assigned_worker_id,omitempty"`
	ApplicantCount   int        `json:"applicant_count"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether an open job has passed its deadline. Deadlines are
// evaluated lazily; the expiry sweep only persists what this already reports.
func (j *Job) ExpiredAt(now time.Time) bool {
	return j.ExpiresAt != nil && !now.Before(*j.ExpiresAt)
}
