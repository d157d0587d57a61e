package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, Notification) error {
	f.calls++
	return errors.New("gateway down")
}

func TestQueueNotifierSwallowsEnqueueErrors(t *testing.T) {
	n := NewQueueNotifier(func(context.Context, DeliverArgs) error {
		return errors.New("queue unavailable")
	}, discard, nil)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Notification{UserID: uuid.New(), Kind: KindPaymentReleased})
	})
}

func TestQueueNotifierEnqueues(t *testing.T) {
	var got []DeliverArgs
	n := NewQueueNotifier(func(_ context.Context, args DeliverArgs) error {
		got = append(got, args)
		return nil
	}, discard, nil)

	user := uuid.New()
	n.Notify(context.Background(), Notification{UserID: user, Kind: KindWorkerSelected})

	require.Len(t, got, 1)
	assert.Equal(t, user, got[0].Notification.UserID)
	assert.Equal(t, "deliver_notification", got[0].Kind())
}

func TestInlineNotifierSwallowsDeliveryErrors(t *testing.T) {
	sender := &failingSender{}
	NewInlineNotifier(sender, discard, nil).Notify(context.Background(), Notification{Kind: KindWorkerCancelled})
	assert.Equal(t, 1, sender.calls)
}

func TestDeliverWorkerReturnsErrorForRetry(t *testing.T) {
	w := NewDeliverWorker(&failingSender{}, discard, nil)
	err := w.Work(context.Background(), &river.Job[DeliverArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: DeliverArgs{Notification: Notification{Kind: KindDisputeOpened}}})
	assert.Error(t, err)
}

func TestWebhookSender(t *testing.T) {
	var received Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	err := s.Send(context.Background(), Notification{Kind: KindPaymentRefunded, Title: "Refund issued"})
	require.NoError(t, err)
	assert.Equal(t, "Refund issued", received.Title)
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, time.Second).Send(context.Background(), Notification{})
	assert.Error(t, err)
}
