package shortener

import (
	"context"
	"time"
)

// Repository stores links.
//
// Implementations must make Insert atomic with respect to the code: two concurrent
// inserts of the same code must never both succeed. Delete and DeleteExpired also remove
// the click history of every link they delete, in the same unit of work.
type Repository interface {
	// Insert persists link. If a link holding the same code expired before now, it is
	// purged first. Returns ErrCodeTaken if a live link holds the code.
	Insert(ctx context.Context, link *Link, now time.Time) error
	// GetByCode returns the link for code, expired or not, or ErrNotFound.
	GetByCode(ctx context.Context, code Code) (*Link, error)
	// Delete removes the link and its clicks. Deleting an unknown code is not an error.
	Delete(ctx context.Context, code Code) error
	// DeleteExpired removes every link whose expiry is before now, with its clicks,
	// and returns how many links were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ClickRepository stores click events. Events are append-only.
type ClickRepository interface {
	Append(ctx context.Context, click *ClickEvent) error
	// ListByCode returns clicks ordered by ClickedAt, ties broken by insertion order.
	ListByCode(ctx context.Context, code Code) ([]ClickEvent, error)
}
