package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpPublishTimeout = 3 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes notifications to a topic exchange, routed by kind and operation.
type AMQPSink struct {
	ch       amqpChannel
	exchange string
}

func NewAMQPSink(ch amqpChannel, exchange string) (*AMQPSink, error) {
	if ch == nil {
		return nil, fmt.Errorf("amqp channel required")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, fmt.Errorf("amqp exchange required")
	}
	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, amqpPublishTimeout)
	defer cancel()

	err = s.ch.PublishWithContext(pubCtx, s.exchange, RoutingKey(n), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.At,
		Type:         string(n.Kind),
		Headers:      amqp.Table{"user_id": n.UserID},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// RoutingKey is notification.<kind>.<operation>, e.g. notification.success.checkout.full.
// A missing operation routes as "unknown".
func RoutingKey(n Notification) string {
	op := strings.TrimSpace(n.Operation)
	if op == "" {
		op = "unknown"
	}
	return "notification." + string(n.Kind) + "." + op
}
