package ratelimit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Scope categorizes a request for rate limiting purposes.
type Scope string

const (
	// ScopeGlobal applies to all requests regardless of type.
	ScopeGlobal Scope = "global"
	// ScopeRead applies to read operations (GET, HEAD, OPTIONS).
	ScopeRead Scope = "read"
	// ScopeWrite applies to operations that create or remove links.
	ScopeWrite Scope = "write"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration, attached to Huma
// operations via the Metadata field.
type EndpointConfig struct {
	// Scope overrides method-based scope detection. Ignored when Limits is set.
	Scope Scope

	// Limits replaces the policy limits for this endpoint. They are tracked per route
	// template, so every code behind "/{code}" shares one counter per client.
	Limits []LimitConfig

	// Bucket names the counters Limits are tracked in, letting several routes share one
	// budget. Empty means the route template.
	Bucket string

	// When restricts Limits to the requests it matches. Other requests fall back to the
	// resolved scopes.
	When func(ctx huma.Context) bool

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// ScopeResolver determines which scopes apply to a given request.
type ScopeResolver func(ctx huma.Context) []Scope

// ResolveScopes returns the global scope plus the operation's configured scope, falling
// back to read for safe methods and write for everything else.
func ResolveScopes(ctx huma.Context) []Scope {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return []Scope{ScopeGlobal, cfg.Scope}
	}

	switch ctx.Method() {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return []Scope{ScopeGlobal, ScopeRead}
	default:
		return []Scope{ScopeGlobal, ScopeWrite}
	}
}

// UsesLimits reports whether the endpoint's own limits apply to this request.
func (c *EndpointConfig) UsesLimits(ctx huma.Context) bool {
	return len(c.Limits) > 0 && (c.When == nil || c.When(ctx))
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
