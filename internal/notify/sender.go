package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender performs the actual delivery (push, email, SMS gateways sit behind it).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("notification", "user_id", n.UserID, "kind", n.Kind, "title", n.Title)
	return nil
}

// WebhookSender POSTs the notification as JSON to a delivery gateway.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// AMQPSender publishes notifications to an exchange consumed by the
// messaging service.
type AMQPSender struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        *slog.Logger
}

func NewAMQPSender(url, exchange, routingKey string, log *slog.Logger) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	log.Info("notification broker connected", "exchange", exchange)
	return &AMQPSender{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey, log: log}, nil
}

func (s *AMQPSender) Send(ctx context.Context, n Notification) error {
	if s.conn.IsClosed() {
		return errors.New("broker connection closed")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx, s.exchange, s.routingKey+"."+n.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

func (s *AMQPSender) Close() error {
	if err := s.channel.Close(); err != nil {
		s.log.Error("close broker channel", "error", err)
	}
	return s.conn.Close()
}
