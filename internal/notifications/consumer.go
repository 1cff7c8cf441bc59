package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/outbox/idempotency"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
	"github.com/duka/supermarket-backend/pkg/outbox/registry"
)

// ConsumerName scopes the idempotency keys of the notification worker.
const ConsumerName = "customer-notifications"

type sender interface {
	Send(ctx context.Context, msg Message) (bool, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer reads outbox events from Pub/Sub and notifies customers.
type Consumer struct {
	subscription receiver
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	dispatcher   sender
	logg         *logger.Logger
}

// NewConsumer wires the notification consumer.
func NewConsumer(subscription receiver, manager *idempotency.Manager, dispatcher sender, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		decoders:     newDecoders(),
		idempotency:  manager,
		dispatcher:   dispatcher,
		logg:         logg,
	}, nil
}

func newDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	registry.RegisterJSON[payloads.PaymentConfirmedEvent](reg, enums.EventPaymentConfirmed, 1)
	registry.RegisterJSON[payloads.PaymentFailedEvent](reg, enums.EventPaymentFailed, 1)
	registry.RegisterJSON[payloads.OrderRefundedEvent](reg, enums.EventOrderRefunded, 1)
	registry.RegisterJSON[payloads.OrderExpiredEvent](reg, enums.EventOrderExpired, 1)
	return reg
}

// Run receives messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process handles one delivery and reports whether it should be acked.
// Undecodable messages are acked since redelivery cannot fix them.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "notification.envelope_invalid", err)
		return true
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notification.event_skipped")
		return true
	}

	messages := messagesFor(payload)
	if len(messages) == 0 {
		c.logg.Info(logCtx, "notification.no_contact")
		return true
	}

	ran, err := c.idempotency.Process(ctx, ConsumerName, eventID, func(ctx context.Context) error {
		var errs error
		for _, msg := range messages {
			if _, err := c.dispatcher.Send(ctx, msg); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", msg.Channel, err))
			}
		}
		return errs
	})
	if err != nil {
		c.logg.Error(logCtx, "notification.dispatch_failed", err)
		return false
	}
	if !ran {
		c.logg.Info(logCtx, "notification.duplicate_event")
		return true
	}
	c.logg.Info(c.logg.WithField(logCtx, "messages", len(messages)), "notification.event_handled")
	return true
}
