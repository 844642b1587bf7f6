package ratelimit

import "time"

// LimitConfig caps the number of requests inside a sliding window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// Policy maps scopes to the limits that apply to them. A request must satisfy every
// limit of every scope it resolves to.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// DefaultPolicy returns limits suited to a link shortener: redirects are cheap and
// frequent, creation is rare and guarded.
func DefaultPolicy() *Policy {
	return &Policy{
		Limits: map[Scope][]LimitConfig{
			ScopeGlobal: {
				{Window: time.Minute, Max: 2000},
			},
			ScopeRead: {
				{Window: time.Minute, Max: 1000},
			},
			ScopeWrite: {
				{Window: time.Minute, Max: 5},
				{Window: time.Hour, Max: 100},
			},
		},
	}
}

// LongestWindow returns the largest window in the policy.
func (p *Policy) LongestWindow() time.Duration {
	var longest time.Duration

	for _, limits := range p.Limits {
		for _, limit := range limits {
			longest = max(longest, limit.Window)
		}
	}

	return longest
}
