package analytics

import "time"

const (
	// TopicLinkCreated carries LinkCreatedEvent.
	TopicLinkCreated = "links.created"
	// TopicLinkClicked carries LinkClickedEvent.
	TopicLinkClicked = "links.clicked"
)

// LinkCreatedEvent represents an event emitted when a link is created.
type LinkCreatedEvent struct {
	Code        string     `json:"code"`
	Destination string     `json:"destination"`
	Custom      bool       `json:"custom"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClientIP    string     `json:"clientIp"`
	UserAgent   string     `json:"userAgent"`
}

// LinkClickedEvent represents a redirect through a link.
type LinkClickedEvent struct {
	Code      string    `json:"code"`
	VisitorID string    `json:"visitorId"`
	ClickedAt time.Time `json:"clickedAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}
