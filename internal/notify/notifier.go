// Package notify fans booking events out to users. Dispatch is
// fire-and-forget: callers never see delivery or enqueue failures.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/metrics"
)

const (
	KindWorkerSelected        = "worker_selected"
	KindSelectionAccepted     = "selection_accepted"
	KindSelectionDeclined     = "selection_declined"
	KindSelectionExpired      = "selection_expired"
	KindWorkStarted           = "work_started"
	KindWorkCompleted         = "work_completed"
	KindPaymentReleased       = "payment_released"
	KindPaymentRefunded       = "payment_refunded"
	KindCancellationRequested = "cancellation_requested"
	KindCancellationResolved  = "cancellation_resolved"
	KindWorkerCancelled       = "worker_cancelled"
	KindDisputeOpened         = "dispute_opened"
	KindDisputeResolved       = "dispute_resolved"
	KindAccountVerified       = "account_verified"
)

type Notification struct {
	UserID uuid.UUID         `json:"user_id"`
	Kind   string            `json:"kind"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// InsertFunc enqueues a delivery job. Wired to river's Insert in main so the
// notifier does not depend on the client's construction order.
type InsertFunc func(ctx context.Context, args DeliverArgs) error

type QueueNotifier struct {
	insert  InsertFunc
	log     *slog.Logger
	metrics *metrics.Collector
}

var _ Notifier = (*QueueNotifier)(nil)

func NewQueueNotifier(insert InsertFunc, log *slog.Logger, m *metrics.Collector) *QueueNotifier {
	return &QueueNotifier{insert: insert, log: log, metrics: m}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) {
	if err := q.insert(ctx, DeliverArgs{Notification: n}); err != nil {
		q.metrics.RecordNotification("enqueue_failed")
		q.log.Warn("notification enqueue failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
		return
	}
	q.metrics.RecordNotification("enqueued")
}

// InlineNotifier delivers synchronously. Used when no queue is available
// (in-memory store mode).
type InlineNotifier struct {
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Collector
}

var _ Notifier = (*InlineNotifier)(nil)

func NewInlineNotifier(sender Sender, log *slog.Logger, m *metrics.Collector) *InlineNotifier {
	return &InlineNotifier{sender: sender, log: log, metrics: m}
}

func (i *InlineNotifier) Notify(ctx context.Context, n Notification) {
	if err := i.sender.Send(ctx, n); err != nil {
		i.metrics.RecordNotification("delivery_failed")
		i.log.Warn("notification delivery failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
		return
	}
	i.metrics.RecordNotification("delivered")
}
