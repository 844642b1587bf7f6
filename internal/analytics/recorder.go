package analytics

import (
	"context"
	"fmt"

	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/shortener"
)

// ClickMode selects how redirects are recorded.
type ClickMode string

const (
	// ClickModeDirect appends the click before the redirect is answered.
	ClickModeDirect ClickMode = "direct"
	// ClickModeStream publishes the click and lets a consumer append it.
	ClickModeStream ClickMode = "stream"
)

// ParseClickMode validates a configured click mode.
func ParseClickMode(mode string) (ClickMode, error) {
	switch ClickMode(mode) {
	case ClickModeDirect, ClickModeStream:
		return ClickMode(mode), nil
	default:
		return "", fmt.Errorf("unknown click mode %q, expected direct or stream", mode)
	}
}

// ClickRecorder records a redirect through a link.
type ClickRecorder interface {
	RecordClick(ctx context.Context, event *LinkClickedEvent) error
}

// DirectRecorder appends clicks synchronously through the engine.
type DirectRecorder struct {
	service *shortener.Service
}

// NewDirectRecorder creates a recorder that writes to the click store.
func NewDirectRecorder(service *shortener.Service) *DirectRecorder {
	return &DirectRecorder{service: service}
}

func (r *DirectRecorder) RecordClick(ctx context.Context, event *LinkClickedEvent) error {
	_, err := r.service.RecordClickAt(ctx, shortener.Code(event.Code), event.VisitorID, event.ClickedAt)

	return err
}

// StreamRecorder publishes clicks for a consumer to append later.
type StreamRecorder struct {
	publish messaging.Publish[LinkClickedEvent]
}

// NewStreamRecorder creates a recorder backed by a publish function.
func NewStreamRecorder(publish messaging.Publish[LinkClickedEvent]) *StreamRecorder {
	return &StreamRecorder{publish: publish}
}

func (r *StreamRecorder) RecordClick(ctx context.Context, event *LinkClickedEvent) error {
	return r.publish(ctx, event)
}
