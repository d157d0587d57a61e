package autorelease

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/lock"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/respond"
	"github.com/gighire/backend/internal/testutil"
)

func newTestEngine(t *testing.T, env *testutil.Env) Engine {
	t.Helper()
	return NewEngine(env.Store, env.Ledger, lock.NewLocalLocker(), newTestValidator(t), env.Notifier, env.Log,
		WithClock(env.Clock.Now))
}

func addRule(t *testing.T, e Engine, name, trigger string, priority int, conditions string) *models.AutoReleaseRule {
	t.Helper()
	r, err := e.CreateRule(context.Background(), RuleInput{
		Name: name, Trigger: trigger, Priority: priority, Conditions: json.RawMessage(conditions),
	})
	require.NoError(t, err)
	return r
}

func logsFor(t *testing.T, env *testutil.Env, bookingID uuid.UUID) []*models.AutoReleaseLog {
	t.Helper()
	logs, err := env.Store.ReleaseLogs().ListByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return logs
}

func TestSweepHybridMaxHoldReleasesAcceptedBooking(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	ctx := context.Background()
	rule := addRule(t, e, "Max hold", models.TriggerHybrid, 1,
		`{"autoReleaseAfterHours":48,"requiredStatus":"worker_completed","maxHoldDurationHours":72}`)
	bk := env.Book(t, 50_000, 20_000, models.BookingAccepted)
	env.Clock.Advance(80 * time.Hour)

	res, err := e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Released)

	b := env.Reload(t, bk.Booking.ID)
	assert.Equal(t, models.BookingCompleted, b.Status)
	assert.Equal(t, models.PaymentReleased, b.PaymentStatus)
	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Worker).Balance)
	assert.Equal(t, int64(0), env.Wallet(t, bk.Client).Escrow)

	job, _ := env.Store.Jobs().GetByID(ctx, bk.Job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	logs := logsFor(t, env, bk.Booking.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReleaseActionReleased, logs[0].Action)
	assert.Equal(t, rule.ID, logs[0].RuleID)

	again, err := e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestSweepTimeBasedZeroHours(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	done := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)
	working := env.Book(t, 50_000, 15_000, models.BookingInProgress)

	res, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, 1, res.Skipped)

	assert.Equal(t, models.PaymentReleased, env.Reload(t, done.Booking.ID).PaymentStatus)
	assert.Equal(t, models.PaymentHeld, env.Reload(t, working.Booking.ID).PaymentStatus)
}

func TestSweepPagesPastWaitingBookings(t *testing.T) {
	env := testutil.NewEnv()
	e := NewEngine(env.Store, env.Ledger, lock.NewLocalLocker(), newTestValidator(t), env.Notifier, env.Log,
		WithClock(env.Clock.Now), WithBatchSize(1))
	addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	waiting := env.Book(t, 50_000, 15_000, models.BookingAccepted)
	env.Clock.Advance(time.Minute)
	also := env.Book(t, 50_000, 10_000, models.BookingInProgress)
	env.Clock.Advance(time.Minute)
	done := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	res, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, 2, res.Skipped)

	assert.Equal(t, models.PaymentReleased, env.Reload(t, done.Booking.ID).PaymentStatus)
	assert.Equal(t, models.PaymentHeld, env.Reload(t, waiting.Booking.ID).PaymentStatus)
	assert.Equal(t, models.PaymentHeld, env.Reload(t, also.Booking.ID).PaymentStatus)
}

func TestSweepFirstRuleByPriorityWins(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	late := addRule(t, e, "Fallback", models.TriggerStatusBased, 20, `{"requiredStatus":"worker_completed"}`)
	first := addRule(t, e, "Primary", models.TriggerTimeBased, 10, `{"autoReleaseAfterHours":1}`)
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)
	env.Clock.Advance(2 * time.Hour)

	_, err := e.RunSweep(context.Background())
	require.NoError(t, err)

	logs := logsFor(t, env, bk.Booking.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, first.ID, logs[0].RuleID)
	assert.NotEqual(t, late.ID, logs[0].RuleID)
}

func TestSweepDisabledRulesAreIgnored(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	r := addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	_, err := e.SetRuleEnabled(context.Background(), r.ID, false)
	require.NoError(t, err)
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	res, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Released)
	assert.Equal(t, models.PaymentHeld, env.Reload(t, bk.Booking.ID).PaymentStatus)
}

func TestSweepContinuesPastFailure(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	ctx := context.Background()
	addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)

	// A held booking whose client escrow was never funded cannot be released.
	now := env.Clock.Now()
	broken := &models.Booking{
		ID: uuid.New(), ClientID: uuid.New(), WorkerID: uuid.New(), BudgetAmount: 9_000,
		Status: models.BookingWorkerCompleted, PaymentStatus: models.PaymentHeld,
		AssignedAt: now, HeldAt: &now, WorkerCompletedAt: &now, CreatedAt: now.Add(-time.Minute),
	}
	require.NoError(t, env.Store.Bookings().Create(ctx, broken))
	good := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	res, err := e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Released)

	assert.Equal(t, models.PaymentHeld, env.Reload(t, broken.ID).PaymentStatus)
	assert.Equal(t, models.PaymentReleased, env.Reload(t, good.Booking.ID).PaymentStatus)
	logs := logsFor(t, env, broken.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReleaseActionFailed, logs[0].Action)
	assert.NotEmpty(t, logs[0].Error)
}

func TestSweepLogsScheduledOnce(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	ctx := context.Background()
	addRule(t, e, "Three days", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":72}`)
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	res, err := e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	env.Clock.Advance(time.Hour)
	res, err = e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 1, res.Skipped)

	logs := logsFor(t, env, bk.Booking.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReleaseActionScheduled, logs[0].Action)
	require.NotNil(t, logs[0].ScheduledAt)
	assert.Equal(t, bk.Booking.WorkerCompletedAt.Add(72*time.Hour), *logs[0].ScheduledAt)

	env.Clock.Advance(72 * time.Hour)
	res, err = e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
}

func TestSweepIgnoresDisputedBookings(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	ctx := context.Background()
	addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)
	b := env.Reload(t, bk.Booking.ID)
	b.Stamp(models.BookingDisputed, env.Clock.Now())
	require.NoError(t, env.Store.Bookings().Save(ctx, b, models.BookingWorkerCompleted))

	res, err := e.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, models.PaymentHeld, env.Reload(t, bk.Booking.ID).PaymentStatus)
}

type blockingLocker struct{}

func (blockingLocker) Acquire(context.Context, string, time.Duration) (lock.Lock, error) {
	return nil, lock.ErrNotAcquired
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	env := testutil.NewEnv()
	e := NewEngine(env.Store, env.Ledger, blockingLocker{}, newTestValidator(t), env.Notifier, env.Log)
	res, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Locked)
	assert.Equal(t, 0, res.Processed)
}

func TestConcurrentSweepsReleaseOnce(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	v := newTestValidator(t)
	// Separate lockers model two replicas without a shared lock.
	a := NewEngine(env.Store, env.Ledger, lock.NewLocalLocker(), v, env.Notifier, env.Log, WithClock(env.Clock.Now))
	b := NewEngine(env.Store, env.Ledger, lock.NewLocalLocker(), v, env.Notifier, env.Log, WithClock(env.Clock.Now))
	addRule(t, a, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	var wg sync.WaitGroup
	for _, e := range []Engine{a, b} {
		wg.Add(1)
		go func(e Engine) {
			defer wg.Done()
			_, _ = e.RunSweep(ctx)
		}(e)
	}
	wg.Wait()

	assert.Equal(t, int64(20_000), env.Wallet(t, bk.Worker).Balance)
	assert.Equal(t, int64(30_000), env.Wallet(t, bk.Client).Balance)
}

func TestSeedRulesOnlyWhenEmpty(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	ctx := context.Background()
	seed := []models.AutoReleaseRule{
		{Name: "Default", Trigger: models.TriggerTimeBased, Enabled: true, Priority: 100,
			Conditions: models.RuleConditions{AutoReleaseAfterHours: 72}},
	}
	n, err := e.SeedRules(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.SeedRules(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rules, _ := e.ListRules(ctx)
	assert.Len(t, rules, 1)
}

func TestCreateRuleRejectsInvalidConditions(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	_, err := e.CreateRule(context.Background(), RuleInput{
		Name: "bad", Trigger: models.TriggerHybrid, Conditions: json.RawMessage(`{"autoReleaseAfterHours":1}`),
	})
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))
}

func TestRunSweepHandler(t *testing.T) {
	env := testutil.NewEnv()
	e := newTestEngine(t, env)
	addRule(t, e, "Immediate", models.TriggerTimeBased, 1, `{"autoReleaseAfterHours":0}`)
	env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)
	h := NewHandler(e, env.Log)

	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/auto-release/run", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		respond.Envelope
		Data SweepResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.Released)
}
