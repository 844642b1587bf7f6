package shortener_test

import (
	"testing"
	"time"

	"github.com/serroba/shortlink/internal/shortener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiryPeriod(t *testing.T) {
	tests := []struct {
		period   string
		expected time.Duration
	}{
		{"", 0},
		{"  ", 0},
		{"1min", time.Minute},
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1m", 30 * 24 * time.Hour},
		{"1H", time.Hour},
		{" 1MIN ", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			d, err := shortener.ParseExpiryPeriod(tt.period)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}

	t.Run("rejects unknown tokens", func(t *testing.T) {
		for _, period := range []string{"2h", "1y", "forever", "60s"} {
			_, err := shortener.ParseExpiryPeriod(period)
			assert.ErrorIs(t, err, shortener.ErrInvalidExpiryPeriod, "period %q", period)
		}
	})
}
