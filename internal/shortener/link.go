package shortener

import "time"

// Code represents a short link code.
type Code string

// Link maps a code to its destination.
type Link struct {
	Code        Code
	Destination string
	ExpiresAt   *time.Time // nil means the link never expires
	CreatedAt   time.Time
}

// ExpiredAt reports whether the link is dead at the given instant.
func (l *Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// ClickEvent records a single redirect through a link.
type ClickEvent struct {
	ID        int64
	Code      Code
	VisitorID string
	ClickedAt time.Time
}

// Summary aggregates the click history of a link.
type Summary struct {
	Code           Code
	Destination    string
	ExpiresAt      *time.Time
	TotalClicks    int
	UniqueVisitors int
	TimeHistory    []time.Time
}
