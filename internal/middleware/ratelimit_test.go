package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/shortlink/internal/middleware"
	"github.com/serroba/shortlink/internal/ratelimit"
	"github.com/serroba/shortlink/internal/store"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type failingStore struct{}

func (failingStore) Record(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func newLimitedRouter(rlStore ratelimit.Store) *chi.Mux {
	policy := &ratelimit.Policy{
		Limits: map[ratelimit.Scope][]ratelimit.LimitConfig{
			ratelimit.ScopeRead:  {{Window: time.Minute, Max: 3}},
			ratelimit.ScopeWrite: {{Window: time.Minute, Max: 1}},
		},
	}

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.PolicyRateLimiter(
		api, ratelimit.NewPolicyLimiter(rlStore, policy), ratelimit.ResolveScopes, zap.NewNop(),
	))

	ok := func(_ context.Context, _ *struct{}) (*testOutput, error) {
		return &testOutput{Body: "ok"}, nil
	}

	huma.Get(api, "/read", ok)
	huma.Post(api, "/write", ok)
	huma.Register(api, huma.Operation{
		OperationID: "open",
		Method:      http.MethodGet,
		Path:        "/open",
		Metadata:    map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true}},
	}, ok)
	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{id}",
		Metadata:    map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{
			Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
		}},
	}, func(_ context.Context, _ *struct {
		ID string `path:"id"`
	},
	) (*testOutput, error) {
		return &testOutput{Body: "ok"}, nil
	})
	shared := ratelimit.EndpointConfig{
		Bucket: "make",
		Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 1}},
	}
	conditional := shared
	conditional.When = func(ctx huma.Context) bool { return ctx.Query("url") != "" }

	huma.Register(api, huma.Operation{
		OperationID: "make",
		Method:      http.MethodPost,
		Path:        "/make",
		Metadata:    map[string]any{ratelimit.MetadataKey: shared},
	}, ok)
	huma.Register(api, huma.Operation{
		OperationID: "make-from-query",
		Method:      http.MethodGet,
		Path:        "/make",
		Metadata:    map[string]any{ratelimit.MetadataKey: conditional},
	}, ok)
	huma.Register(api, huma.Operation{
		OperationID: "promoted",
		Method:      http.MethodGet,
		Path:        "/promoted",
		Metadata:    map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeWrite}},
	}, ok)

	return router
}

func serve(router http.Handler, method, path string, headers ...string) int {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("User-Agent", "TestAgent/1.0")

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w.Code
}

func TestPolicyRateLimiter(t *testing.T) {
	t.Run("limits reads by the read scope", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		for range 3 {
			assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/read"))
		}

		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/read"))
	})

	t.Run("limits writes by the write scope", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write"))
		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/write"))
	})

	t.Run("clients are keyed by ip and user agent", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write", "X-Forwarded-For", "10.0.0.1"))
		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write", "X-Forwarded-For", "10.0.0.2"))
		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write",
			"X-Forwarded-For", "10.0.0.1", "User-Agent", "Other/2.0"))
	})

	t.Run("disabled endpoints are never limited", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		for range 10 {
			assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/open"))
		}
	})

	t.Run("route limits are shared across path values", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/items/a"))
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/items/b"))
		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/items/c"))
	})

	t.Run("metadata scope overrides the method", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/promoted"))
		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/promoted"))
	})

	t.Run("routes in one bucket share a budget", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/make"))
		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/make?url=https://example.com"))
	})

	t.Run("unmatched requests fall back to the scopes", func(t *testing.T) {
		router := newLimitedRouter(store.NewRateLimitMemoryStore())

		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/make"))

		for range 3 {
			assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/make"))
		}

		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/make"))
	})

	t.Run("store failures are internal errors", func(t *testing.T) {
		router := newLimitedRouter(failingStore{})

		assert.Equal(t, http.StatusInternalServerError, serve(router, http.MethodGet, "/read"))
	})
}
