package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/handlers"
	"github.com/serroba/shortlink/internal/health"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/middleware"
	"github.com/serroba/shortlink/internal/ratelimit"
	"github.com/serroba/shortlink/internal/shortener"
	"github.com/serroba/shortlink/internal/store"
	"go.uber.org/zap"
)

// startupTimeout bounds connecting to and migrating the database.
const startupTimeout = 30 * time.Second

// LoggerPackage provides the application logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.LogFormat {
		case "json":
			return zap.NewProduction()
		case "console", "":
			return zap.NewDevelopment()
		default:
			return nil, fmt.Errorf("unknown log format %q, expected console or json", opts.LogFormat)
		}
	})
}

// RedisConnection owns the shared Redis client.
type RedisConnection struct {
	Client *redis.Client
}

// Shutdown closes the client.
func (c *RedisConnection) Shutdown() error {
	return c.Client.Close()
}

// RedisPackage provides the Redis connection when an address is configured.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisConnection, error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.RedisEnabled() {
			return nil, errors.New("redis is not configured")
		}

		return &RedisConnection{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// redisClient returns the shared client, or nil when Redis is disabled.
func redisClient(i *do.Injector) *redis.Client {
	if !do.MustInvoke[*Options](i).RedisEnabled() {
		return nil
	}

	return do.MustInvoke[*RedisConnection](i).Client
}

// Storage bundles the selected backend.
type Storage struct {
	Links  shortener.Repository
	Clicks shortener.ClickRepository
	Health health.Checker
	close  func() error
}

// Shutdown releases the backend.
func (s *Storage) Shutdown() error {
	if s.close == nil {
		return nil
	}

	return s.close()
}

// RepositoryPackage provides link and click storage for the configured backend, with a
// Redis read-through cache in front of links when Redis is enabled.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Storage, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		storage, err := openStorage(opts)
		if err != nil {
			return nil, err
		}

		if client := redisClient(i); client != nil {
			cacheTTL, _, err := opts.Durations()
			if err != nil {
				_ = storage.Shutdown()

				return nil, err
			}

			storage.Links = store.NewRedisCacheRepository(storage.Links, client, cacheTTL, shortener.UTCClock, logger)
		}

		logger.Info("storage ready", zap.String("backend", opts.Storage))

		return storage, nil
	})
}

func openStorage(opts *Options) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	switch opts.Storage {
	case StorageMemory, "":
		s := store.NewMemoryStore()

		return &Storage{Links: s, Clicks: s, Health: s}, nil
	case StorageSQLite:
		s, err := store.OpenSQLite(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}

		return &Storage{Links: s, Clicks: s, Health: s, close: s.Shutdown}, nil
	case StoragePostgres:
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shortener.ErrStorageUnavailable, err)
		}

		s := store.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()

			return nil, err
		}

		return &Storage{Links: s, Clicks: s, Health: s, close: s.Shutdown}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q, expected memory, sqlite or postgres", opts.Storage)
	}
}

// ServicePackage provides the engine and its opportunistic sweeper.
func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*shortener.Service, error) {
		opts := do.MustInvoke[*Options](i)
		storage := do.MustInvoke[*Storage](i)

		generator, err := shortener.NewCodeGenerator(opts.CodeLength)
		if err != nil {
			return nil, err
		}

		return shortener.NewService(
			storage.Links, storage.Clicks, generator, shortener.UTCClock, do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (*shortener.Sweeper, error) {
		_, interval, err := do.MustInvoke[*Options](i).Durations()
		if err != nil {
			return nil, err
		}

		service := do.MustInvoke[*shortener.Service](i)

		return shortener.NewSweeper(service.Sweep, shortener.UTCClock, interval, do.MustInvoke[*zap.Logger](i)), nil
	})
}

// RateLimitPackage provides the policy limiter, sharing counters through Redis when it
// is enabled.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.Store, error) {
		if client := redisClient(i); client != nil {
			return store.NewRateLimitRedisStore(client), nil
		}

		return store.NewRateLimitMemoryStore(), nil
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		return ratelimit.NewPolicyLimiter(do.MustInvoke[ratelimit.Store](i), ratelimit.DefaultPolicy()), nil
	})

	do.Provide(i, func(i *do.Injector) (*RateLimitJanitor, error) {
		memory, ok := do.MustInvoke[ratelimit.Store](i).(*store.RateLimitMemoryStore)
		if !ok {
			return &RateLimitJanitor{}, nil
		}

		return startJanitor(memory, ratelimit.DefaultPolicy().LongestWindow(), do.MustInvoke[*zap.Logger](i)), nil
	})
}

// RateLimitJanitor periodically forgets idle clients of the in-memory rate limit store.
type RateLimitJanitor struct {
	stop chan struct{}
	done chan struct{}
}

func startJanitor(memory *store.RateLimitMemoryStore, window time.Duration, logger *zap.Logger) *RateLimitJanitor {
	j := &RateLimitJanitor{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(j.done)

		ticker := time.NewTicker(window)
		defer ticker.Stop()

		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				if n := memory.Forget(window); n > 0 {
					logger.Debug("forgot idle rate limit clients", zap.Int("count", n))
				}
			}
		}
	}()

	return j
}

// Shutdown stops the janitor.
func (j *RateLimitJanitor) Shutdown() error {
	if j.stop == nil {
		return nil
	}

	close(j.stop)
	<-j.done

	return nil
}

// Transport carries events to consumers: Redis Streams when Redis is enabled, otherwise
// an in-process channel that the server consumes itself.
type Transport struct {
	Publisher message.Publisher
	InProcess *gochannel.GoChannel
}

// Shutdown closes the publisher.
func (t *Transport) Shutdown() error {
	return t.Publisher.Close()
}

// TransportPackage provides the event transport.
func TransportPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Transport, error) {
		logger := messaging.NewZapLogger(do.MustInvoke[*zap.Logger](i))

		if client := redisClient(i); client != nil {
			publisher, err := messaging.NewRedisStreamPublisher(client, logger)
			if err != nil {
				return nil, err
			}

			return &Transport{Publisher: publisher}, nil
		}

		pubSub := messaging.NewInProcess(logger)

		return &Transport{Publisher: pubSub, InProcess: pubSub}, nil
	})
}

// PublisherGroupPackage provides the publisher group and the analytics publishers.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		return messaging.NewPublisherGroup(do.MustInvoke[*Transport](i).Publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[analytics.LinkCreatedEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[analytics.LinkCreatedEvent](group.Publisher(), analytics.TopicLinkCreated), nil
	})

	do.Provide(i, func(i *do.Injector) (analytics.ClickRecorder, error) {
		opts := do.MustInvoke[*Options](i)

		mode, err := analytics.ParseClickMode(opts.ClickMode)
		if err != nil {
			return nil, err
		}

		if mode == analytics.ClickModeDirect {
			return analytics.NewDirectRecorder(do.MustInvoke[*shortener.Service](i)), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return analytics.NewStreamRecorder(
			messaging.NewPublishFunc[analytics.LinkClickedEvent](group.Publisher(), analytics.TopicLinkClicked),
		), nil
	})
}

// ConsumerGroupPackage provides the analytics consumers. The in-process transport is
// consumed from the same channel the server publishes to; Redis Streams are read as a
// member of the configured consumer group.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		transport := do.MustInvoke[*Transport](i)

		var subscriber message.Subscriber = transport.InProcess
		if transport.InProcess == nil {
			sub, err := messaging.NewRedisStreamSubscriber(
				redisClient(i), opts.ConsumerGroup, messaging.NewZapLogger(logger),
			)
			if err != nil {
				return nil, err
			}

			subscriber = sub
		}

		cfg := messaging.DefaultGroupConfig()
		cfg.PoisonPublisher = transport.Publisher

		group, err := messaging.NewConsumerGroup(subscriber, cfg, logger)
		if err != nil {
			return nil, err
		}

		for _, consumer := range analytics.Consumers(do.MustInvoke[*shortener.Service](i), logger) {
			group.Add(consumer)
		}

		return group, nil
	})
}

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimiddleware.RequestID, chimiddleware.Recoverer)

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		storage := do.MustInvoke[*Storage](i)
		service := do.MustInvoke[*shortener.Service](i)

		api := humachi.New(do.MustInvoke[*chi.Mux](i), huma.DefaultConfig("Short Links", "1.0.0"))
		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.PolicyRateLimiter(api, do.MustInvoke[*ratelimit.PolicyLimiter](i), ratelimit.ResolveScopes, logger),
		)

		_ = do.MustInvoke[*RateLimitJanitor](i)

		linkHandler := handlers.NewLinkHandler(
			service,
			do.MustInvoke[*shortener.Sweeper](i),
			do.MustInvoke[analytics.ClickRecorder](i),
			do.MustInvoke[messaging.Publish[analytics.LinkCreatedEvent]](i),
			shortener.UTCClock,
			opts.PublicBaseURL(),
			logger,
		)

		checkers := map[string]health.Checker{"storage": storage.Health}
		if client := redisClient(i); client != nil {
			checkers["redis"] = health.NewRedisChecker(client)
		}

		health.RegisterRoutes(api, health.NewHandler(checkers))
		handlers.RegisterRoutes(api, linkHandler)

		return api, nil
	})
}
