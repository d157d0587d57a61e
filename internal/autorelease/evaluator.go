// Package autorelease releases escrow to workers when a client goes quiet,
// driven by admin-defined rules evaluated in priority order.
package autorelease

import (
	"fmt"
	"slices"
	"time"

	"github.com/gighire/backend/internal/models"
)

// Candidates are the workflow statuses a sweep looks at.
var Candidates = []models.BookingStatus{
	models.BookingAccepted, models.BookingInProgress, models.BookingWorkerCompleted,
}

// Decision is one rule's verdict on one booking. EligibleAt is set when the
// only unmet predicate is time.
type Decision struct {
	Release    bool
	Reason     string
	EligibleAt *time.Time
}

type Evaluator interface {
	Evaluate(b *models.Booking, now time.Time) Decision
}

// EvaluatorFor returns the evaluator for the rule's trigger.
func EvaluatorFor(rule *models.AutoReleaseRule) (Evaluator, error) {
	c := rule.Conditions
	switch rule.Trigger {
	case models.TriggerTimeBased:
		return timeBased{c}, nil
	case models.TriggerStatusBased:
		return statusBased{c}, nil
	case models.TriggerHybrid:
		return hybrid{c}, nil
	}
	return nil, fmt.Errorf("unknown trigger %q", rule.Trigger)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// referenceTime is when the client's silence starts counting.
func referenceTime(b *models.Booking) time.Time {
	switch {
	case b.WorkerCompletedAt != nil:
		return *b.WorkerCompletedAt
	case b.AcceptedAt != nil:
		return *b.AcceptedAt
	case b.HeldAt != nil:
		return *b.HeldAt
	}
	return b.AssignedAt
}

func heldSince(b *models.Booking) time.Time {
	if b.HeldAt != nil {
		return *b.HeldAt
	}
	return b.AssignedAt
}

type timeBased struct{ c models.RuleConditions }

func (e timeBased) Evaluate(b *models.Booking, now time.Time) Decision {
	if b.Status != models.BookingWorkerCompleted &&
		!(e.c.AllowBeforeCompletion && slices.Contains(Candidates, b.Status)) {
		return Decision{}
	}
	due := referenceTime(b).Add(hours(e.c.AutoReleaseAfterHours))
	if now.Before(due) {
		return Decision{EligibleAt: &due}
	}
	return Decision{
		Release: true,
		Reason:  fmt.Sprintf("%gh elapsed without client confirmation", e.c.AutoReleaseAfterHours),
	}
}

type statusBased struct{ c models.RuleConditions }

func (e statusBased) Evaluate(b *models.Booking, _ time.Time) Decision {
	if e.c.RequireClientConfirmation || b.Status != e.c.RequiredStatus {
		return Decision{}
	}
	return Decision{Release: true, Reason: fmt.Sprintf("booking reached %s", b.Status)}
}

// hybrid releases when both the status and the time predicate hold, or
// unconditionally once funds have been held longer than maxHoldDurationHours.
type hybrid struct{ c models.RuleConditions }

func (e hybrid) Evaluate(b *models.Booking, now time.Time) Decision {
	var maxDue *time.Time
	if e.c.MaxHoldDurationHours != nil {
		due := heldSince(b).Add(hours(*e.c.MaxHoldDurationHours))
		if !now.Before(due) {
			return Decision{
				Release: true,
				Reason:  fmt.Sprintf("funds held longer than %gh", *e.c.MaxHoldDurationHours),
			}
		}
		maxDue = &due
	}

	statusOK := e.c.RequiredStatus == "" || b.Status == e.c.RequiredStatus
	if statusOK && !e.c.RequireClientConfirmation {
		due := referenceTime(b).Add(hours(e.c.AutoReleaseAfterHours))
		if !now.Before(due) {
			return Decision{
				Release: true,
				Reason:  fmt.Sprintf("%s for %gh", b.Status, e.c.AutoReleaseAfterHours),
			}
		}
		if maxDue != nil && maxDue.Before(due) {
			due = *maxDue
		}
		return Decision{EligibleAt: &due}
	}
	return Decision{EligibleAt: maxDue}
}
