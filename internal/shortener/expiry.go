package shortener

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryPeriods lists the accepted expiry tokens. "1m" is a month, "1min" a minute.
var ExpiryPeriods = map[string]time.Duration{
	"1min": time.Minute,
	"1h":   time.Hour,
	"1d":   24 * time.Hour,
	"1w":   7 * 24 * time.Hour,
	"1m":   30 * 24 * time.Hour,
}

// ParseExpiryPeriod converts a period token into a duration.
// An empty token means the link never expires and yields zero.
func ParseExpiryPeriod(period string) (time.Duration, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return 0, nil
	}

	d, ok := ExpiryPeriods[strings.ToLower(period)]
	if !ok {
		return 0, fmt.Errorf("%w: %q, choose one of 1min, 1h, 1d, 1w, 1m", ErrInvalidExpiryPeriod, period)
	}

	return d, nil
}
