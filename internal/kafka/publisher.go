package kafka

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// EventPublisher adapts Producer to checkout.Publisher.
type EventPublisher struct {
	p   *Producer
	log logrus.FieldLogger
}

func NewEventPublisher(p *Producer, log logrus.FieldLogger) *EventPublisher {
	return &EventPublisher{p: p, log: log}
}

func (e *EventPublisher) Publish(ctx context.Context, topic string, env orders.Envelope) error {
	entry := e.log.WithFields(logrus.Fields{
		"topic":      topic,
		"event_type": env.EventType,
		"event_id":   env.EventID,
		"order_id":   env.CorrelationID,
	})
	m, err := EnvelopeMessage(topic, env)
	if err != nil {
		entry.WithError(err).Error("encode event")
		return err
	}
	if err := e.p.Publish(ctx, m); err != nil {
		entry.WithError(err).Warn("event dropped")
		return err
	}
	entry.Debug("event queued")
	return nil
}
