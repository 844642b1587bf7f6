package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortlink/internal/shortener"
	"go.uber.org/zap"
)

// DeleteTombstoneTTL is how long a delete blocks cache fills from lookups that read the
// link before it was removed.
const DeleteTombstoneTTL = time.Minute

// RedisCacheRepository wraps a Repository with Redis caching for lookups.
// A cached entry never outlives the expiry of the link it holds.
type RedisCacheRepository struct {
	store  shortener.Repository
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    shortener.Clock
	logger *zap.Logger
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store shortener.Repository,
	client *redis.Client,
	ttl time.Duration,
	clock shortener.Clock,
	logger *zap.Logger,
) *RedisCacheRepository {
	return &RedisCacheRepository{
		store:  store,
		client: client,
		prefix: "link:",
		ttl:    ttl,
		now:    clock,
		logger: logger,
	}
}

// Insert stores a link in the underlying store and updates the cache, lifting any
// tombstone a previous holder of the code left behind.
func (r *RedisCacheRepository) Insert(ctx context.Context, link *shortener.Link, now time.Time) error {
	if err := r.store.Insert(ctx, link, now); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.tombstoneKey(link.Code))
	r.queueLink(ctx, pipe, link, now)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("failed to cache link", zap.String("code", string(link.Code)), zap.Error(err))
	}

	return nil
}

// GetByCode retrieves a link by its code, checking the cache first.
func (r *RedisCacheRepository) GetByCode(ctx context.Context, code shortener.Code) (*shortener.Link, error) {
	if link, err := r.getFromCache(ctx, code); err == nil {
		return link, nil
	}

	link, err := r.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.fill(ctx, link)

	return link, nil
}

// Delete invalidates the cache entry after removing the link from the store and leaves a
// tombstone so lookups already in flight cannot cache the removed link again.
func (r *RedisCacheRepository) Delete(ctx context.Context, code shortener.Code) error {
	if err := r.store.Delete(ctx, code); err != nil {
		return err
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.tombstoneKey(code), "1", DeleteTombstoneTTL)
		pipe.Del(ctx, r.key(code))

		return nil
	})
	if err != nil {
		r.logger.Warn("failed to invalidate cached link", zap.String("code", string(code)), zap.Error(err))
	}

	return nil
}

// DeleteExpired delegates to the store. Cached entries of expired links have already
// been evicted by Redis.
func (r *RedisCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.store.DeleteExpired(ctx, now)
}

func (r *RedisCacheRepository) key(code shortener.Code) string {
	return r.prefix + string(code)
}

// Codes never contain ':', so tombstones cannot collide with link keys.
func (r *RedisCacheRepository) tombstoneKey(code shortener.Code) string {
	return r.prefix + "deleted:" + string(code)
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code shortener.Code) (*shortener.Link, error) {
	result, err := r.client.HGetAll(ctx, r.key(code)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, shortener.ErrNotFound
	}

	createdAt, err := strconv.ParseInt(result["created_at"], 10, 64)
	if err != nil {
		return nil, err
	}

	link := &shortener.Link{
		Code:        shortener.Code(result["code"]),
		Destination: result["destination"],
		CreatedAt:   time.Unix(0, createdAt).UTC(),
	}

	if raw := result["expires_at"]; raw != "" {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}

		expiresAt := time.Unix(0, nanos).UTC()
		link.ExpiresAt = &expiresAt
	}

	return link, nil
}

// fill caches a link read from the store on a miss. It backs off when the code was
// deleted or cached by someone else since the read.
func (r *RedisCacheRepository) fill(ctx context.Context, link *shortener.Link) {
	now := r.now()
	if link.ExpiredAt(now) {
		return
	}

	key, tombstone := r.key(link.Code), r.tombstoneKey(link.Code)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Exists(ctx, key, tombstone).Result()
		if err != nil || existing > 0 {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.queueLink(ctx, pipe, link, now)

			return nil
		})

		return err
	}, key, tombstone)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("skipped cache fill after concurrent write", zap.String("code", string(link.Code)))
	default:
		r.logger.Warn("failed to cache link", zap.String("code", string(link.Code)), zap.Error(err))
	}
}

// queueLink adds the writes caching link to pipe. Expired links are left to the store so
// a sweep is observed immediately.
func (r *RedisCacheRepository) queueLink(
	ctx context.Context, pipe redis.Pipeliner, link *shortener.Link, now time.Time,
) {
	if link.ExpiredAt(now) {
		return
	}

	expiresAt := ""
	if link.ExpiresAt != nil {
		expiresAt = strconv.FormatInt(link.ExpiresAt.UnixNano(), 10)
	}

	key := r.key(link.Code)

	pipe.HSet(ctx, key, map[string]interface{}{
		"code":        string(link.Code),
		"destination": link.Destination,
		"expires_at":  expiresAt,
		"created_at":  link.CreatedAt.UnixNano(),
	})

	switch {
	case link.ExpiresAt != nil && (r.ttl <= 0 || link.ExpiresAt.Before(now.Add(r.ttl))):
		pipe.PExpireAt(ctx, key, *link.ExpiresAt)
	case r.ttl > 0:
		pipe.Expire(ctx, key, r.ttl)
	}
}

// Shutdown is a no-op for RedisCacheRepository (client managed externally).
func (r *RedisCacheRepository) Shutdown() error {
	return nil
}

// Compile-time check.
var _ shortener.Repository = (*RedisCacheRepository)(nil)
