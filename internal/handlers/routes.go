package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlink/internal/ratelimit"
)

// creationBucket is the rate limit budget shared by every operation that creates a link.
const creationBucket = "create-link"

var creationLimits = []ratelimit.LimitConfig{
	{Window: time.Minute, Max: 5},
	{Window: time.Hour, Max: 100},
	{Window: 24 * time.Hour, Max: 500},
}

// createsLink matches index requests that carry a URL to shorten.
func createsLink(ctx huma.Context) bool {
	return ctx.Query("url") != ""
}

// RegisterRoutes registers the link routes with per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, h *LinkHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "shorten",
		Method:        http.MethodPost,
		Path:          "/shorten",
		Summary:       "Create short link",
		Description:   "Creates a short link, optionally with a custom code and an expiry period.",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusTooManyRequests},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Bucket: creationBucket, Limits: creationLimits},
		},
	}, h.Shorten)

	// Creates through the address bar draw on the POST /shorten budget. Plain landing
	// page hits are ordinary reads.
	huma.Register(api, huma.Operation{
		OperationID: "index",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Landing page or direct shortener",
		Description: "Without a url parameter this is the landing page. With one, it creates a short link.",
		Tags:        []string{"Links"},
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusTooManyRequests},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Bucket: creationBucket,
				Limits: creationLimits,
				When:   createsLink,
			},
		},
	}, h.Index)

	huma.Register(api, huma.Operation{
		OperationID: "home",
		Method:      http.MethodGet,
		Path:        "/home",
		Summary:     "Landing page",
		Tags:        []string{"Links"},
	}, h.Home)

	huma.Register(api, huma.Operation{
		OperationID: "analytics",
		Method:      http.MethodGet,
		Path:        "/analytics",
		Summary:     "Link analytics",
		Description: "Returns click totals, unique visitors and the click history of a link.",
		Tags:        []string{"Analytics"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, h.Analytics)

	huma.Register(api, huma.Operation{
		OperationID: "delete",
		Method:      http.MethodDelete,
		Path:        "/delete",
		Summary:     "Delete short link",
		Description: "Removes a link and its click history. Unknown links are ignored.",
		Tags:        []string{"Links"},
		Errors:      []int{http.StatusBadRequest},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID:   "redirect",
		Method:        http.MethodGet,
		Path:          "/{code}",
		Summary:       "Follow short link",
		Description:   "Redirects to the destination of the short link and records the click.",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusFound,
		Errors:        []int{http.StatusNotFound, http.StatusGone},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 1000}},
			},
		},
	}, h.Redirect)
}
