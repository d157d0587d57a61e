package autorelease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func heldBookingAt(status models.BookingStatus, held time.Time) *models.Booking {
	h := held
	b := &models.Booking{Status: status, PaymentStatus: models.PaymentHeld, AssignedAt: held, HeldAt: &h}
	if status != models.BookingConfirmed {
		b.AcceptedAt = &h
	}
	return b
}

func evaluate(t *testing.T, trigger string, c models.RuleConditions, b *models.Booking, now time.Time) Decision {
	t.Helper()
	ev, err := EvaluatorFor(&models.AutoReleaseRule{Trigger: trigger, Conditions: c})
	require.NoError(t, err)
	return ev.Evaluate(b, now)
}

func TestTimeBased(t *testing.T) {
	c := models.RuleConditions{AutoReleaseAfterHours: 72}

	completed := heldBookingAt(models.BookingWorkerCompleted, t0)
	wc := t0.Add(10 * time.Hour)
	completed.WorkerCompletedAt = &wc

	d := evaluate(t, models.TriggerTimeBased, c, completed, wc.Add(71*time.Hour))
	assert.False(t, d.Release)
	require.NotNil(t, d.EligibleAt)
	assert.Equal(t, wc.Add(72*time.Hour), *d.EligibleAt)

	d = evaluate(t, models.TriggerTimeBased, c, completed, wc.Add(72*time.Hour))
	assert.True(t, d.Release)

	// accepted bookings need allowBeforeCompletion.
	accepted := heldBookingAt(models.BookingAccepted, t0)
	d = evaluate(t, models.TriggerTimeBased, c, accepted, t0.Add(100*time.Hour))
	assert.False(t, d.Release)
	assert.Nil(t, d.EligibleAt)

	c.AllowBeforeCompletion = true
	d = evaluate(t, models.TriggerTimeBased, c, accepted, t0.Add(100*time.Hour))
	assert.True(t, d.Release)
}

func TestTimeBasedZeroHoursReleasesImmediately(t *testing.T) {
	b := heldBookingAt(models.BookingWorkerCompleted, t0)
	b.WorkerCompletedAt = &t0
	d := evaluate(t, models.TriggerTimeBased, models.RuleConditions{}, b, t0)
	assert.True(t, d.Release)
}

func TestStatusBased(t *testing.T) {
	c := models.RuleConditions{RequiredStatus: models.BookingWorkerCompleted}
	assert.True(t, evaluate(t, models.TriggerStatusBased, c, heldBookingAt(models.BookingWorkerCompleted, t0), t0).Release)
	assert.False(t, evaluate(t, models.TriggerStatusBased, c, heldBookingAt(models.BookingInProgress, t0), t0).Release)

	c.RequireClientConfirmation = true
	d := evaluate(t, models.TriggerStatusBased, c, heldBookingAt(models.BookingWorkerCompleted, t0), t0)
	assert.False(t, d.Release)
	assert.Nil(t, d.EligibleAt)
}

func TestHybridMaxHold(t *testing.T) {
	maxHold := 72.0
	c := models.RuleConditions{
		AutoReleaseAfterHours: 48,
		RequiredStatus:        models.BookingWorkerCompleted,
		MaxHoldDurationHours:  &maxHold,
	}

	// Held 80h in accepted: status never reached, max hold forces release.
	d := evaluate(t, models.TriggerHybrid, c, heldBookingAt(models.BookingAccepted, t0), t0.Add(80*time.Hour))
	assert.True(t, d.Release)
	assert.Contains(t, d.Reason, "72")

	// Held 60h in accepted: only time is missing.
	d = evaluate(t, models.TriggerHybrid, c, heldBookingAt(models.BookingAccepted, t0), t0.Add(60*time.Hour))
	assert.False(t, d.Release)
	require.NotNil(t, d.EligibleAt)
	assert.Equal(t, t0.Add(72*time.Hour), *d.EligibleAt)
}

func TestHybridStatusAndTime(t *testing.T) {
	c := models.RuleConditions{AutoReleaseAfterHours: 24, RequiredStatus: models.BookingWorkerCompleted}
	b := heldBookingAt(models.BookingWorkerCompleted, t0)
	wc := t0.Add(5 * time.Hour)
	b.WorkerCompletedAt = &wc

	d := evaluate(t, models.TriggerHybrid, c, b, wc.Add(23*time.Hour))
	assert.False(t, d.Release)
	assert.Equal(t, wc.Add(24*time.Hour), *d.EligibleAt)

	d = evaluate(t, models.TriggerHybrid, c, b, wc.Add(24*time.Hour))
	assert.True(t, d.Release)

	d = evaluate(t, models.TriggerHybrid, c, heldBookingAt(models.BookingInProgress, t0), t0.Add(500*time.Hour))
	assert.False(t, d.Release)
	assert.Nil(t, d.EligibleAt)
}

func TestEvaluatorForUnknownTrigger(t *testing.T) {
	_, err := EvaluatorFor(&models.AutoReleaseRule{Trigger: "manual"})
	assert.Error(t, err)
}
