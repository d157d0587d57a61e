package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TriggerTimeBased   = "time_based"
	TriggerStatusBased = "status_based"
	TriggerHybrid      = "hybrid"
)

const (
	ReleaseActionReleased  = "released"
	ReleaseActionFailed    = "failed"
	ReleaseActionScheduled = "scheduled"
)

type RuleConditions struct {
	AutoReleaseAfterHours     float64       `json:"autoReleaseAfterHours" yaml:"autoReleaseAfterHours"`
	MaxHoldDurationHours      *float64      `json:"maxHoldDurationHours,omitempty" yaml:"maxHoldDurationHours,omitempty"`
	RequiredStatus            BookingStatus `json:"requiredStatus,omitempty" yaml:"requiredStatus,omitempty"`
	RequireClientConfirmation bool          `json:"requireClientConfirmation" yaml:"requireClientConfirmation"`
	// AllowBeforeCompletion lets a time_based rule consider accepted and
	// in_progress bookings, not only worker_completed ones.
	AllowBeforeCompletion bool `json:"allowBeforeCompletion" yaml:"allowBeforeCompletion"`
}

type AutoReleaseRule struct {
	ID         uuid.UUID      `json:"id" yaml:"-"`
	Name       string         `json:"name" yaml:"name"`
	Trigger    string         `json:"trigger" yaml:"trigger"`
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	Priority   int            `json:"priority" yaml:"priority"`
	Conditions RuleConditions `json:"conditions" yaml:"conditions"`
	CreatedAt  time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time      `json:"updated_at" yaml:"-"`
}

type ReleaseLogMetadata struct {
	BookingStatus BookingStatus `json:"bookingStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	BudgetAmount  int64         `json:"budgetAmount"`
	ClientEscrow  int64         `json:"clientEscrow"`
}

type AutoReleaseLog struct {
	ID          uuid.UUID          `json:"id"`
	BookingID   uuid.UUID          `json:"booking_id"`
	RuleID      uuid.UUID          `json:"rule_id"`
	Action      string             `json:"action"`
	Reason      string             `json:"reason"`
	Error       string             `json:"error,omitempty"`
	Metadata    ReleaseLogMetadata `json:"metadata"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty"`
	ExecutedAt  *time.Time         `json:"executed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
