package ratelimit

import (
	"context"
	"fmt"
)

// LimitExceeded contains information about which limit was exceeded.
type LimitExceeded struct {
	Scope  Scope // empty for endpoint-specific limits
	Config LimitConfig
	Count  int64
}

func (e *LimitExceeded) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("rate limit exceeded: %d/%d requests in %s", e.Count, e.Config.Max, e.Config.Window)
	}

	return fmt.Sprintf("rate limit exceeded: %s scope, %d/%d requests in %s",
		e.Scope, e.Count, e.Config.Max, e.Config.Window)
}

// PolicyLimiter enforces rate limits based on a policy and resolved scopes.
type PolicyLimiter struct {
	store  Store
	policy *Policy
}

// NewPolicyLimiter creates a new policy-based rate limiter.
func NewPolicyLimiter(store Store, policy *Policy) *PolicyLimiter {
	return &PolicyLimiter{
		store:  store,
		policy: policy,
	}
}

// Allow records a request for clientKey against every limit of the given scopes.
// It returns a non-nil LimitExceeded for the first limit that is over its maximum.
func (l *PolicyLimiter) Allow(ctx context.Context, clientKey string, scopes []Scope) (*LimitExceeded, error) {
	for _, scope := range scopes {
		for _, limit := range l.policy.Limits[scope] {
			key := fmt.Sprintf("%s:%s:%d", clientKey, scope, limit.Window.Milliseconds())

			exceeded, err := l.check(ctx, key, limit)
			if err != nil || exceeded != nil {
				if exceeded != nil {
					exceeded.Scope = scope
				}

				return exceeded, err
			}
		}
	}

	return nil, nil
}

// AllowRoute records a request for clientKey against limits that belong to one route.
func (l *PolicyLimiter) AllowRoute(
	ctx context.Context, clientKey, route string, limits []LimitConfig,
) (*LimitExceeded, error) {
	for _, limit := range limits {
		key := fmt.Sprintf("%s:route:%s:%d", clientKey, route, limit.Window.Milliseconds())

		exceeded, err := l.check(ctx, key, limit)
		if err != nil || exceeded != nil {
			return exceeded, err
		}
	}

	return nil, nil
}

func (l *PolicyLimiter) check(ctx context.Context, key string, limit LimitConfig) (*LimitExceeded, error) {
	count, err := l.store.Record(ctx, key, limit.Window)
	if err != nil {
		return nil, err
	}

	if count > limit.Max {
		return &LimitExceeded{Config: limit, Count: count}, nil
	}

	return nil, nil
}
