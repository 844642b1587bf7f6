package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds code regeneration after collisions.
const DefaultMaxAttempts = 8

// Clock returns the current time.
type Clock func() time.Time

// UTCClock is the production clock.
func UTCClock() time.Time {
	return time.Now().UTC()
}

// CreateRequest describes a link to create.
type CreateRequest struct {
	Destination  string
	CustomCode   Code   // empty means a code is generated
	ExpiryPeriod string // empty means the link never expires
}

// Service is the short link engine.
type Service struct {
	links        Repository
	clicks       ClickRepository
	generateCode CodeGenerator
	now          Clock
	maxAttempts  int
	logger       *zap.Logger
}

// NewService creates a new engine over the given stores.
func NewService(
	links Repository,
	clicks ClickRepository,
	generator CodeGenerator,
	clock Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		links:        links,
		clicks:       clicks,
		generateCode: generator,
		now:          clock,
		maxAttempts:  DefaultMaxAttempts,
		logger:       logger,
	}
}

// Create stores a new link. A custom code that a live link already holds fails with
// ErrCodeTaken; generated codes are retried on collision up to the attempt limit. A
// generated code that is reserved counts as a collision.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Link, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return nil, ErrEmptyDestination
	}

	ttl, err := ParseExpiryPeriod(req.ExpiryPeriod)
	if err != nil {
		return nil, err
	}

	now := s.now()
	link := &Link{
		Destination: req.Destination,
		CreatedAt:   now,
	}

	if ttl > 0 {
		expiresAt := now.Add(ttl)
		link.ExpiresAt = &expiresAt
	}

	if req.CustomCode != "" {
		if err := ValidateCode(req.CustomCode); err != nil {
			return nil, err
		}

		link.Code = req.CustomCode

		if err := s.links.Insert(ctx, link, now); err != nil {
			return nil, err
		}

		return link, nil
	}

	return s.insertGenerated(ctx, link, now)
}

func (s *Service) insertGenerated(ctx context.Context, link *Link, now time.Time) (*Link, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		link.Code = Code(s.generateCode())

		if IsReserved(link.Code) {
			s.logger.Debug("generated code is reserved", zap.String("code", string(link.Code)))

			continue
		}

		err := s.links.Insert(ctx, link, now)
		if err == nil {
			return link, nil
		}

		if !errors.Is(err, ErrCodeTaken) {
			return nil, err
		}

		s.logger.Warn("generated code collided",
			zap.String("code", string(link.Code)),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, s.maxAttempts)
}

// Resolve returns the live link for code. A known but expired link yields ErrExpired.
func (s *Service) Resolve(ctx context.Context, code Code) (*Link, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if link.ExpiredAt(s.now()) {
		return nil, ErrExpired
	}

	return link, nil
}

// RecordClick appends a click stamped with the current time.
func (s *Service) RecordClick(ctx context.Context, code Code, visitorID string) (*ClickEvent, error) {
	return s.RecordClickAt(ctx, code, visitorID, s.now())
}

// RecordClickAt appends a click that happened at the given time. The code is trusted.
func (s *Service) RecordClickAt(ctx context.Context, code Code, visitorID string, at time.Time) (*ClickEvent, error) {
	click := &ClickEvent{
		Code:      code,
		VisitorID: visitorID,
		ClickedAt: at.UTC(),
	}

	if err := s.clicks.Append(ctx, click); err != nil {
		return nil, err
	}

	return click, nil
}

// RecordLateClick appends a click observed earlier, for example one delivered through a
// queue. Links deleted or purged in the meantime yield ErrNotFound and record nothing,
// including when the code was re-created after the click happened.
func (s *Service) RecordLateClick(ctx context.Context, code Code, visitorID string, at time.Time) (*ClickEvent, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if at.Before(link.CreatedAt) {
		return nil, fmt.Errorf("%w: click at %s predates the current link", ErrNotFound, at.Format(time.RFC3339))
	}

	return s.RecordClickAt(ctx, code, visitorID, at)
}

// Summarize aggregates the clicks of a link. Expired links that have not been swept yet
// still have a summary.
func (s *Service) Summarize(ctx context.Context, code Code) (*Summary, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clicks.ListByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	visitors := make(map[string]struct{}, len(clicks))
	history := make([]time.Time, 0, len(clicks))

	for _, click := range clicks {
		visitors[click.VisitorID] = struct{}{}
		history = append(history, click.ClickedAt)
	}

	return &Summary{
		Code:           link.Code,
		Destination:    link.Destination,
		ExpiresAt:      link.ExpiresAt,
		TotalClicks:    len(clicks),
		UniqueVisitors: len(visitors),
		TimeHistory:    history,
	}, nil
}

// Delete removes a link and its click history. Unknown codes are ignored.
func (s *Service) Delete(ctx context.Context, code Code) error {
	return s.links.Delete(ctx, code)
}

// Sweep purges every link that expired before now and returns how many were removed.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int64, error) {
	purged, err := s.links.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		s.logger.Info("purged expired links", zap.Int64("count", purged))
	}

	return purged, nil
}
