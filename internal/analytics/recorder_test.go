package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
	"github.com/serroba/shortlink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var clickedAt = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *shortener.Service {
	t.Helper()

	gen, err := shortener.NewCodeGenerator(shortener.DefaultCodeLength)
	require.NoError(t, err)

	s := store.NewMemoryStore()

	return shortener.NewService(s, s, gen, func() time.Time { return clickedAt }, zap.NewNop())
}

func TestParseClickMode(t *testing.T) {
	mode, err := analytics.ParseClickMode("direct")
	require.NoError(t, err)
	assert.Equal(t, analytics.ClickModeDirect, mode)

	mode, err = analytics.ParseClickMode("stream")
	require.NoError(t, err)
	assert.Equal(t, analytics.ClickModeStream, mode)

	_, err = analytics.ParseClickMode("kafka")
	assert.Error(t, err)
}

func TestDirectRecorder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	link, err := svc.Create(ctx, shortener.CreateRequest{Destination: "https://example.com"})
	require.NoError(t, err)

	recorder := analytics.NewDirectRecorder(svc)

	err = recorder.RecordClick(ctx, &analytics.LinkClickedEvent{
		Code:      string(link.Code),
		VisitorID: "10.0.0.1",
		ClickedAt: clickedAt,
	})
	require.NoError(t, err)

	summary, err := svc.Summarize(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalClicks)
	assert.Equal(t, []time.Time{clickedAt}, summary.TimeHistory)
}

func TestStreamRecorder(t *testing.T) {
	t.Run("publishes the event", func(t *testing.T) {
		var published *analytics.LinkClickedEvent

		recorder := analytics.NewStreamRecorder(func(_ context.Context, event *analytics.LinkClickedEvent) error {
			published = event

			return nil
		})

		event := &analytics.LinkClickedEvent{Code: "abc123", VisitorID: "10.0.0.1", ClickedAt: clickedAt}

		require.NoError(t, recorder.RecordClick(context.Background(), event))
		assert.Same(t, event, published)
	})

	t.Run("returns publish errors", func(t *testing.T) {
		recorder := analytics.NewStreamRecorder(func(_ context.Context, _ *analytics.LinkClickedEvent) error {
			return errors.New("publish error")
		})

		assert.Error(t, recorder.RecordClick(context.Background(), &analytics.LinkClickedEvent{}))
	})
}
