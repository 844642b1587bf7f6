package analytics

import (
	"context"
	"errors"

	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/shortener"
	"go.uber.org/zap"
)

// NewClickHandler appends streamed clicks with their original timestamp. Clicks on links
// removed since the redirect are dropped.
func NewClickHandler(service *shortener.Service, logger *zap.Logger) messaging.Handler[LinkClickedEvent] {
	return func(ctx context.Context, event *LinkClickedEvent) error {
		_, err := service.RecordLateClick(ctx, shortener.Code(event.Code), event.VisitorID, event.ClickedAt)
		if errors.Is(err, shortener.ErrNotFound) {
			logger.Debug("dropping click for removed link", zap.String("code", event.Code))

			return nil
		}

		return err
	}
}

// NewCreatedAuditHandler writes every created link to the audit log.
func NewCreatedAuditHandler(logger *zap.Logger) messaging.Handler[LinkCreatedEvent] {
	return func(_ context.Context, event *LinkCreatedEvent) error {
		fields := []zap.Field{
			zap.String("code", event.Code),
			zap.String("destination", event.Destination),
			zap.Bool("custom", event.Custom),
			zap.Time("created_at", event.CreatedAt),
			zap.String("client_ip", event.ClientIP),
		}
		if event.ExpiresAt != nil {
			fields = append(fields, zap.Time("expires_at", *event.ExpiresAt))
		}

		logger.Info("link created", fields...)

		return nil
	}
}

// Consumers builds the consumers that process analytics topics.
func Consumers(service *shortener.Service, logger *zap.Logger) []messaging.Route {
	return []messaging.Route{
		messaging.NewConsumer(TopicLinkClicked, NewClickHandler(service, logger), logger),
		messaging.NewConsumer(TopicLinkCreated, NewCreatedAuditHandler(logger), logger),
	}
}
