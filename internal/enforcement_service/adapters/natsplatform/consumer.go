package natsplatform

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/autobahn/moderation/internal/enforcement_service/domain"
)

// Subscriber is satisfied by *messagebroker.NATSClient.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) error
}

type EventHandler interface {
	Handle(ctx context.Context, ev *domain.Event) (domain.Result, error)
}

// Consumer decodes platform events and hands each one to the engine.
type Consumer struct {
	sub        Subscriber
	handler    EventHandler
	subject    string
	queueGroup string
	timeout    time.Duration
	logger     *slog.Logger
}

func NewConsumer(sub Subscriber, handler EventHandler, subject, queueGroup string, timeout time.Duration, logger *slog.Logger) *Consumer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Consumer{
		sub:        sub,
		handler:    handler,
		subject:    subject,
		queueGroup: queueGroup,
		timeout:    timeout,
		logger:     logger.With("component", "event_consumer"),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Starting event consumer", "subject", c.subject, "queue_group", c.queueGroup)
	return c.sub.SubscribeToSubjectWithQueue(ctx, c.subject, c.queueGroup, func(msg *nats.Msg) {
		c.process(ctx, msg.Subject, msg.Data)
	})
}

func (c *Consumer) process(ctx context.Context, subject string, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable event", "subject", subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.handler.Handle(ctx, &ev)
	if err != nil {
		c.logger.ErrorContext(ctx, "Event handling failed", "subject", subject, "chat_id", ev.ChatID, "outcome", res.Outcome, "error", err)
		return
	}
	c.logger.DebugContext(ctx, "Event handled", "chat_id", ev.ChatID, "kind", ev.Kind, "outcome", res.Outcome, "detail", res.Detail)
}
