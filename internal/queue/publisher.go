package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events to RabbitMQ. Each publish opens its own
// connection, so a broker restart never leaves the publisher stuck.
// Errors are logged and returned; callers decide whether to ignore them.
type Publisher struct {
	url string
	log *slog.Logger
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, log: logger.With("component", "publisher")}
}

// PublishPasswordReset publishes ev to the durable auth.password_reset
// queue as a persistent message.
func (p *Publisher) PublishPasswordReset(ctx context.Context, ev PasswordResetRequested) error {
	pub, err := newPublishing(ev)
	if err != nil {
		p.log.ErrorContext(ctx, "marshal event failed", "err", err)
		return err
	}

	conn, err := dialContext(ctx, p.url)
	if err != nil {
		p.log.ErrorContext(ctx, "dial failed", "err", err)
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.ErrorContext(ctx, "channel open failed", "err", err)
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareResetQueue(ch); err != nil {
		p.log.ErrorContext(ctx, "queue declare failed", "err", err)
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",                 // default exchange
		PasswordResetQueue, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		pub,
	); err != nil {
		p.log.ErrorContext(ctx, "publish failed", "err", err)
		return fmt.Errorf("publish: %w", err)
	}
	p.log.DebugContext(ctx, "password reset published", "user_id", ev.UserID)
	return nil
}

// dialTimeout bounds the TCP connect and AMQP handshake when ctx carries
// no deadline of its own.
const dialTimeout = 5 * time.Second

// dialContext opens a broker connection bound to ctx. amqp.Dial uses its
// own 30s timeout and ignores the caller's context; here both the TCP
// connect and the handshake stop at ctx's deadline.
func dialContext(ctx context.Context, url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(dialTimeout)
			}
			// Cleared by the client once the handshake completes.
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	})
}

func newPublishing(ev PasswordResetRequested) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent, // store on disk
		Timestamp:     time.Now().UTC(),
		CorrelationId: ev.RequestID,
		Type:          PasswordResetQueue,
		Body:          body,
	}, nil
}

// declareResetQueue ensures the queue exists (idempotent). Durable so
// messages survive broker restarts.
func declareResetQueue(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		PasswordResetQueue, // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

// LogNotifier stands in for the broker in development: it logs the event,
// including the reset link, instead of publishing it.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) PublishPasswordReset(ctx context.Context, ev PasswordResetRequested) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested",
		"user_id", ev.UserID,
		"email", ev.Email,
		"reset_url", ev.ResetURL,
		"expires_at", ev.ExpiresAt,
	)
	return nil
}
