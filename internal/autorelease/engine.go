package autorelease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/booking"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/lock"
	"github.com/gighire/backend/internal/metrics"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository"
)

const (
	sweepLockKey     = "auto-release-sweep"
	defaultBatchSize = 500
	defaultLockTTL   = 10 * time.Minute
)

type SweepResult struct {
	Processed  int       `json:"processed"`
	Released   int       `json:"released"`
	Failed     int       `json:"failed"`
	Scheduled  int       `json:"scheduled"`
	Skipped    int       `json:"skipped"`
	Locked     bool      `json:"locked,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Engine interface {
	RunSweep(ctx context.Context) (*SweepResult, error)

	ListRules(ctx context.Context) ([]*models.AutoReleaseRule, error)
	CreateRule(ctx context.Context, in RuleInput) (*models.AutoReleaseRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (*models.AutoReleaseRule, error)
	SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.AutoReleaseRule, error)
	SeedRules(ctx context.Context, rules []models.AutoReleaseRule) (int, error)
	ListLogs(ctx context.Context, bookingID *uuid.UUID, limit int) ([]*models.AutoReleaseLog, error)
}

type engine struct {
	store     repository.Store
	ledger    ledger.Service
	locker    lock.Locker
	validator *Validator
	notifier  notify.Notifier
	metrics   *metrics.Collector
	log       *slog.Logger
	batch     int
	lockTTL   time.Duration
	now       func() time.Time
}

var _ Engine = (*engine)(nil)

type Option func(*engine)

func WithClock(now func() time.Time) Option { return func(e *engine) { e.now = now } }

func WithMetrics(m *metrics.Collector) Option { return func(e *engine) { e.metrics = m } }

func WithBatchSize(n int) Option {
	return func(e *engine) {
		if n > 0 {
			e.batch = n
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(e *engine) {
		if d > 0 {
			e.lockTTL = d
		}
	}
}

func NewEngine(store repository.Store, l ledger.Service, locker lock.Locker, v *Validator, notifier notify.Notifier, log *slog.Logger, opts ...Option) Engine {
	e := &engine{
		store:     store,
		ledger:    l,
		locker:    locker,
		validator: v,
		notifier:  notifier,
		log:       log,
		batch:     defaultBatchSize,
		lockTTL:   defaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type compiledRule struct {
	rule *models.AutoReleaseRule
	eval Evaluator
}

// RunSweep evaluates every held candidate booking against the enabled
// rules, paging through them in batches. The first rule that matches releases the booking; a failure on one
// booking is logged and the sweep moves on.
func (e *engine) RunSweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{StartedAt: e.now()}
	held, err := e.locker.Acquire(ctx, sweepLockKey, e.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		e.log.Info("auto-release sweep already running elsewhere; skipping")
		res.Locked = true
		res.FinishedAt = e.now()
		e.metrics.RecordSweep("locked", 0)
		return res, nil
	}
	if err != nil {
		e.metrics.RecordSweep("error", 0)
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release sweep lock", "error", err)
		}
	}()

	rules, err := e.loadRules(ctx)
	if err != nil {
		e.metrics.RecordSweep("error", 0)
		return nil, err
	}
	var after *repository.Cursor
	for ctx.Err() == nil {
		page, err := e.store.Bookings().ListHeld(ctx, Candidates, after, e.batch)
		if err != nil {
			e.metrics.RecordSweep("error", 0)
			return nil, fmt.Errorf("list held bookings: %w", err)
		}
		for _, b := range page {
			if ctx.Err() != nil {
				break
			}
			res.Processed++
			action := e.sweepBooking(ctx, b, rules)
			switch action {
			case models.ReleaseActionReleased:
				res.Released++
			case models.ReleaseActionFailed:
				res.Failed++
			case models.ReleaseActionScheduled:
				res.Scheduled++
			default:
				res.Skipped++
			}
			e.metrics.RecordSweepBooking(action)
		}
		if len(page) < e.batch {
			break
		}
		after = repository.CursorAfter(page[len(page)-1])
	}

	res.FinishedAt = e.now()
	e.metrics.RecordSweep("ok", res.FinishedAt.Sub(res.StartedAt))
	e.log.Info("auto-release sweep finished",
		"processed", res.Processed, "released", res.Released, "failed", res.Failed,
		"scheduled", res.Scheduled, "skipped", res.Skipped, "rules", len(rules))
	return res, ctx.Err()
}

func (e *engine) loadRules(ctx context.Context) ([]compiledRule, error) {
	rules, err := e.store.Rules().List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ev, err := EvaluatorFor(r)
		if err != nil {
			e.log.Error("skipping unusable rule", "rule_id", r.ID, "error", err)
			continue
		}
		out = append(out, compiledRule{rule: r, eval: ev})
	}
	return out, nil
}

// sweepBooking returns the action taken, or "skipped".
func (e *engine) sweepBooking(ctx context.Context, b *models.Booking, rules []compiledRule) string {
	now := e.now()
	scheduled := false
	for _, cr := range rules {
		d := cr.eval.Evaluate(b, now)
		if d.Release {
			return e.release(ctx, b, cr.rule, d.Reason)
		}
		if d.EligibleAt != nil && e.schedule(ctx, b, cr.rule, *d.EligibleAt) {
			scheduled = true
		}
	}
	if scheduled {
		return models.ReleaseActionScheduled
	}
	return "skipped"
}

func (e *engine) release(ctx context.Context, b *models.Booking, rule *models.AutoReleaseRule, reason string) string {
	now := e.now()
	var out *ledger.Outcome
	err := e.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		out, err = e.ledger.ReleaseEscrow(ctx, tx, ledger.Request{
			BookingID: b.ID,
			Reason:    fmt.Sprintf("auto-release rule %q: %s", rule.Name, reason),
			Source:    ledger.SourceAutoRelease,
			From:      booking.SettleFrom(ledger.SourceAutoRelease),
		})
		if err != nil || out.AlreadySettled {
			return err
		}
		return booking.CompleteJob(ctx, tx, out.Booking, now)
	})
	if err != nil {
		e.log.Error("auto-release failed", "booking_id", b.ID, "rule_id", rule.ID, "error", err)
		e.appendLog(ctx, b, rule, models.ReleaseActionFailed, reason, err.Error(), nil)
		return models.ReleaseActionFailed
	}
	if out.AlreadySettled {
		return "skipped"
	}
	e.appendLog(ctx, out.Booking, rule, models.ReleaseActionReleased, reason, "", nil)
	e.log.Info("escrow auto-released", "booking_id", b.ID, "rule", rule.Name, "amount", b.BudgetAmount)
	data := map[string]string{"bookingId": b.ID.String(), "rule": rule.Name}
	e.notifier.Notify(ctx, notify.Notification{
		UserID: b.WorkerID, Kind: notify.KindPaymentReleased, Title: "Payment released",
		Body: "Payment for your booking was released automatically.", Data: data,
	})
	e.notifier.Notify(ctx, notify.Notification{
		UserID: b.ClientID, Kind: notify.KindPaymentReleased, Title: "Payment released",
		Body: "Escrow for your booking was released to the worker: " + reason + ".", Data: data,
	})
	return models.ReleaseActionReleased
}

// schedule records the expected eligibility time once per booking and rule.
func (e *engine) schedule(ctx context.Context, b *models.Booking, rule *models.AutoReleaseRule, at time.Time) bool {
	exists, err := e.store.ReleaseLogs().Exists(ctx, b.ID, rule.ID, models.ReleaseActionScheduled)
	if err != nil {
		e.log.Warn("check scheduled log", "booking_id", b.ID, "error", err)
		return false
	}
	if exists {
		return false
	}
	e.appendLog(ctx, b, rule, models.ReleaseActionScheduled, "waiting for time condition", "", &at)
	return true
}

func (e *engine) appendLog(ctx context.Context, b *models.Booking, rule *models.AutoReleaseRule, action, reason, errMsg string, scheduledAt *time.Time) {
	now := e.now()
	entry := &models.AutoReleaseLog{
		ID:          uuid.New(),
		BookingID:   b.ID,
		RuleID:      rule.ID,
		Action:      action,
		Reason:      reason,
		Error:       errMsg,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		Metadata: models.ReleaseLogMetadata{
			BookingStatus: b.Status,
			PaymentStatus: b.PaymentStatus,
			BudgetAmount:  b.BudgetAmount,
		},
	}
	if action != models.ReleaseActionScheduled {
		entry.ExecutedAt = &now
	}
	if w, err := e.store.Wallets().Get(ctx, b.ClientID); err == nil {
		entry.Metadata.ClientEscrow = w.Escrow
	}
	if err := e.store.ReleaseLogs().Append(ctx, entry); err != nil {
		e.log.Error("append auto-release log", "booking_id", b.ID, "action", action, "error", err)
	}
}

func (e *engine) ListLogs(ctx context.Context, bookingID *uuid.UUID, limit int) ([]*models.AutoReleaseLog, error) {
	var (
		logs []*models.AutoReleaseLog
		err  error
	)
	if bookingID != nil {
		logs, err = e.store.ReleaseLogs().ListByBooking(ctx, *bookingID)
	} else {
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		logs, err = e.store.ReleaseLogs().ListRecent(ctx, limit)
	}
	if err != nil {
		return nil, apperr.Internal("list auto-release logs", err)
	}
	return logs, nil
}
