package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrOutboxFull is returned when the outbox buffer has no room left.
var ErrOutboxFull = errors.New("reset mail outbox full")

// ResetSender delivers one password reset event. *Publisher implements it.
type ResetSender interface {
	PublishPasswordReset(ctx context.Context, ev PasswordResetRequested) error
}

// Outbox buffers reset events and hands them to a sender from a background
// worker. PublishPasswordReset never waits on the broker, so a slow or hung
// broker cannot change how long a reset request takes.
type Outbox struct {
	next    ResetSender
	events  chan PasswordResetRequested
	timeout time.Duration
	log     *slog.Logger
}

// NewOutbox creates an outbox holding up to size pending events. Each send
// is bounded by timeout. Run must be started for events to leave.
func NewOutbox(next ResetSender, size int, timeout time.Duration, logger *slog.Logger) *Outbox {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = dialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		next:    next,
		events:  make(chan PasswordResetRequested, size),
		timeout: timeout,
		log:     logger.With("component", "reset-outbox"),
	}
}

// PublishPasswordReset enqueues ev without blocking.
func (o *Outbox) PublishPasswordReset(_ context.Context, ev PasswordResetRequested) error {
	select {
	case o.events <- ev:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Run sends queued events until ctx is cancelled. Events still buffered at
// that point are logged and dropped; the user can request another link.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(o.events); n > 0 {
				o.log.Warn("outbox stopped with pending events", "dropped", n)
			}
			return
		case ev := <-o.events:
			o.send(ctx, ev)
		}
	}
}

func (o *Outbox) send(ctx context.Context, ev PasswordResetRequested) {
	sendCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.next.PublishPasswordReset(sendCtx, ev); err != nil {
		o.log.Error("reset mail not sent", "user_id", ev.UserID, "request_id", ev.RequestID, "err", err)
	}
}
