package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/gighire/backend/internal/metrics"
)

const QueueNotifications = "notifications"

type DeliverArgs struct {
	Notification Notification `json:"notification"`
}

func (DeliverArgs) Kind() string { return "deliver_notification" }

func (DeliverArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueNotifications, MaxAttempts: 5}
}

type DeliverWorker struct {
	river.WorkerDefaults[DeliverArgs]
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Collector
}

func NewDeliverWorker(sender Sender, log *slog.Logger, m *metrics.Collector) *DeliverWorker {
	return &DeliverWorker{sender: sender, log: log, metrics: m}
}

// Work returns the sender's error so river retries with backoff; the booking
// operation that produced the notification has long since committed.
func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverArgs]) error {
	n := job.Args.Notification
	if err := w.sender.Send(ctx, n); err != nil {
		w.metrics.RecordNotification("delivery_failed")
		w.log.Warn("notification delivery failed",
			"user_id", n.UserID, "kind", n.Kind, "attempt", job.Attempt, "error", err)
		return fmt.Errorf("deliver %s to %s: %w", n.Kind, n.UserID, err)
	}
	w.metrics.RecordNotification("delivered")
	return nil
}
