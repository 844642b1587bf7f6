package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlink/internal/ratelimit"
	"go.uber.org/zap"
)

// PolicyRateLimiter returns a Huma middleware that applies policy-based rate limiting.
//
// Operations can carry a ratelimit.EndpointConfig under ratelimit.MetadataKey to
// disable limiting, override the resolved scope, or replace the policy with
// route-specific limits that several routes may share through a bucket.
func PolicyRateLimiter(
	api huma.API,
	limiter *ratelimit.PolicyLimiter,
	resolve ratelimit.ScopeResolver,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		route := operationPath(ctx)
		cfg := ratelimit.GetEndpointConfig(ctx)

		if cfg != nil && cfg.Disabled {
			next(ctx)

			return
		}

		var (
			exceeded *ratelimit.LimitExceeded
			err      error
		)

		if cfg != nil && cfg.UsesLimits(ctx) {
			bucket := route
			if cfg.Bucket != "" {
				bucket = cfg.Bucket
			}

			exceeded, err = limiter.AllowRoute(ctx.Context(), clientKey(ctx), bucket, cfg.Limits)
		} else {
			exceeded, err = limiter.Allow(ctx.Context(), clientKey(ctx), resolve(ctx))
		}

		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", route), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error")

			return
		}

		if exceeded != nil {
			logger.Warn("rate limit exceeded",
				zap.String("path", route),
				zap.String("method", ctx.Method()),
				zap.String("scope", string(exceeded.Scope)),
				zap.Int64("count", exceeded.Count),
				zap.Int64("max", exceeded.Config.Max),
				zap.Duration("window", exceeded.Config.Window),
				zap.String("client_ip", ClientIP(ctx)),
			)
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, exceeded.Error())

			return
		}

		next(ctx)
	}
}

func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ctx.URL().Path
}
