package messaging

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Handler processes a single event. Returning an error retries the message.
type Handler[T any] func(ctx context.Context, event *T) error

// Route is a topic handler a ConsumerGroup can mount.
type Route interface {
	Topic() string
	Handle(msg *message.Message) error
}

// Consumer decodes messages of one topic into T and passes them to a typed handler.
type Consumer[T any] struct {
	topic   string
	handler Handler[T]
	logger  *zap.Logger
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](topic string, handler Handler[T], logger *zap.Logger) *Consumer[T] {
	return &Consumer[T]{
		topic:   topic,
		handler: handler,
		logger:  logger.With(zap.String("topic", topic)),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Handle decodes and processes one message. Malformed payloads are logged and dropped.
func (c *Consumer[T]) Handle(msg *message.Message) error {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Error("dropping malformed event",
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)

		return nil
	}

	if err := c.handler(msg.Context(), &event); err != nil {
		return err
	}

	c.logger.Debug("processed event", zap.String("message_id", msg.UUID))

	return nil
}
