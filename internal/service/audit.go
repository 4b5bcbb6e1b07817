package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/queue"
)

// NewAuditEvent converts an entry into its wire form with a fresh id.
func NewAuditEvent(e AuditEntry) queue.AuditEvent {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return queue.AuditEvent{
		ID:         uuid.NewString(),
		Action:     e.Action,
		ActorID:    e.ActorID,
		UserID:     e.UserID,
		Before:     e.Before,
		After:      e.After,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}

// LogAuditSink writes audit entries to the structured logger.
type LogAuditSink struct {
	log *zap.Logger
}

func NewLogAuditSink(log *zap.Logger) *LogAuditSink {
	if log == nil {
		log = zap.L()
	}
	return &LogAuditSink{log: log.Named("audit")}
}

func (s *LogAuditSink) Record(_ context.Context, e AuditEntry) error {
	ev := NewAuditEvent(e)
	s.log.Info("audit event",
		zap.String("id", ev.ID),
		zap.String("action", ev.Action),
		zap.Uint64("actor_id", ev.ActorID),
		zap.Uint64("user_id", ev.UserID),
		zap.Any("before", ev.Before),
		zap.Any("after", ev.After),
		zap.String("occurred_at", ev.OccurredAt),
	)
	return nil
}

// AMQPAuditSink publishes audit entries to a durable RabbitMQ queue.  Each
// publish dials its own connection so a broker outage only affects the
// event being published.
type AMQPAuditSink struct {
	url     string
	queue   string
	timeout time.Duration
	log     *zap.Logger
}

func NewAMQPAuditSink(url, queueName string, log *zap.Logger) *AMQPAuditSink {
	if log == nil {
		log = zap.L()
	}
	return &AMQPAuditSink{url: url, queue: queueName, timeout: 5 * time.Second, log: log.Named("audit")}
}

// WithTimeout bounds connecting, the handshake and publishing of each
// event.  Non-positive values are ignored.
func (s *AMQPAuditSink) WithTimeout(d time.Duration) *AMQPAuditSink {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// dialTimeout is s.timeout, shortened to ctx's deadline when that is
// sooner.
func (s *AMQPAuditSink) dialTimeout(ctx context.Context) time.Duration {
	d := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = max(left, time.Millisecond)
		}
	}
	return d
}

func (s *AMQPAuditSink) Record(ctx context.Context, e AuditEntry) error {
	body, err := json.Marshal(NewAuditEvent(e))
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(s.url, amqp.Config{Dial: amqp.DefaultDial(s.dialTimeout(ctx))})
	if err != nil {
		return fmt.Errorf("audit: dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("audit: open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		s.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("audit: declare queue: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := ch.PublishWithContext(pubCtx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("audit: publish: %w", err)
	}
	s.log.Debug("audit event published", zap.String("action", e.Action), zap.Uint64("user_id", e.UserID))
	return nil
}
