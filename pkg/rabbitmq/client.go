package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/logger"
)

const (
	dialTimeout  = 10 * time.Second
	exchangeKind = "topic"
)

var (
	errURLRequired      = errors.New("amqp url is required")
	errExchangeRequired = errors.New("amqp exchange is required")
	errNotInitialized   = errors.New("amqp client not initialized")
)

// Client owns one AMQP connection and a publishing channel bound to the
// notifications exchange. amqp.Channel is not safe for concurrent publishes,
// so Publish serializes on mu.
type Client struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// New dials the broker and declares the durable topic exchange notifications go to.
func New(ctx context.Context, cfg config.NotificationsConfig, logg *logger.Logger) (*Client, error) {
	url := strings.TrimSpace(cfg.AMQPURL)
	if url == "" {
		return nil, errURLRequired
	}
	exchange := strings.TrimSpace(cfg.AMQPExchange)
	if exchange == "" {
		return nil, errExchangeRequired
	}

	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	c, err := newFromConn(conn, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", exchange), "amqp client initialized")
	}
	return c, nil
}

func newFromConn(conn *amqp.Connection, exchange string) (*Client, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Client{conn: conn, ch: ch, exchange: exchange}, nil
}

// Exchange returns the exchange name messages are published to.
func (c *Client) Exchange() string {
	if c == nil {
		return ""
	}
	return c.exchange
}

// PublishWithContext publishes msg on the shared channel.
func (c *Client) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c == nil || c.ch == nil {
		return errNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// Ping reports whether the connection and channel are still open.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil {
		return errNotInitialized
	}
	if c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	if c.ch.IsClosed() {
		return errors.New("amqp channel closed")
	}
	return nil
}

// Close shuts the channel and then the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	var chErr error
	if c.ch != nil && !c.ch.IsClosed() {
		chErr = c.ch.Close()
	}
	if c.conn.IsClosed() {
		return chErr
	}
	return multierr.Append(chErr, c.conn.Close())
}
