package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"
)

// PoisonTopic receives messages that kept failing after every retry.
const PoisonTopic = "events.poison"

// GroupConfig tunes redelivery of failing messages.
type GroupConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// PoisonPublisher, when set, receives messages that exhausted their retries, which
	// are then acked. Without it they are nacked and redelivered by the transport.
	PoisonPublisher message.Publisher
}

// DefaultGroupConfig retries a handler three times with exponential backoff.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// ConsumerGroup runs consumers that share one subscriber on a watermill router.
type ConsumerGroup struct {
	router     *message.Router
	subscriber message.Subscriber
	routes     int
	started    bool
	logger     *zap.Logger
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, cfg GroupConfig, logger *zap.Logger) (*ConsumerGroup, error) {
	wmLogger := NewZapLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	if cfg.PoisonPublisher != nil {
		poison, err := middleware.PoisonQueue(cfg.PoisonPublisher, PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}

		router.AddMiddleware(poison)
	}

	router.AddMiddleware(
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)

	return &ConsumerGroup{
		router:     router,
		subscriber: subscriber,
		logger:     logger,
	}, nil
}

// Add mounts a consumer on the group. Routes must be added before Start.
func (g *ConsumerGroup) Add(route Route) {
	g.router.AddNoPublisherHandler(route.Topic(), route.Topic(), g.subscriber, route.Handle)
	g.routes++
}

// Start runs the router in the background and returns once it is consuming.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	errs := make(chan error, 1)

	go func() {
		errs <- g.router.Run(ctx)
	}()

	select {
	case <-g.router.Running():
		g.started = true
		g.logger.Info("consumer group started", zap.Int("count", g.routes))

		return nil
	case err := <-errs:
		if err == nil {
			err = errors.New("router stopped before it started")
		}

		return fmt.Errorf("failed to start consumer group: %w", err)
	}
}

// Shutdown waits for in-flight messages, stops the router and closes the subscriber.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group")

	var errs []error

	if g.started {
		errs = append(errs, g.router.Close())
		g.started = false
	}

	errs = append(errs, g.subscriber.Close())

	return errors.Join(errs...)
}
