package events

import (
	"context"
	"encoding/json"
	"fmt"

	"moviecat-admin/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Topic carries every mutation event; the type travels in message metadata.
const Topic = "moviedesk.events"

const metadataType = "event_type"

// Publisher emits confirmed mutations.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// BusPublisher publishes onto a watermill publisher, usually the in-process
// gochannel pub/sub.
type BusPublisher struct {
	publisher message.Publisher
	logger    logger.ILogger
}

func NewBusPublisher(publisher message.Publisher, logger logger.ILogger) *BusPublisher {
	return &BusPublisher{publisher: publisher, logger: logger}
}

func (p *BusPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metadataType, event.EventType())
	msg.SetContext(ctx)

	if err := p.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}

	p.logger.Debug("EVENTS", "Event published", map[string]interface{}{
		"type": event.EventType(),
		"uuid": msg.UUID,
	})
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Consume subscribes to Topic and calls handle for every decoded event until
// ctx is done. Undecodable messages are acked and skipped.
func Consume(ctx context.Context, subscriber message.Subscriber, logger logger.ILogger, handle func(BaseEvent)) error {
	messages, err := subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var evt BaseEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				logger.Warn("EVENTS", "Failed to unmarshal event", map[string]interface{}{
					"uuid":  msg.UUID,
					"error": err.Error(),
				})
				msg.Ack()
				continue
			}
			handle(evt)
			msg.Ack()
		}
	}()

	return nil
}
