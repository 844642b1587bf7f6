package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/shortener"
	"go.uber.org/zap"
)

const landingMessage = "Send a URL to POST /shorten or GET /?url= to get a short link."

// LinkHandler exposes the short link engine over HTTP.
type LinkHandler struct {
	service        *shortener.Service
	sweeper        *shortener.Sweeper
	clicks         analytics.ClickRecorder
	publishCreated messaging.Publish[analytics.LinkCreatedEvent]
	now            shortener.Clock
	baseURL        string
	logger         *zap.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(
	service *shortener.Service,
	sweeper *shortener.Sweeper,
	clicks analytics.ClickRecorder,
	publishCreated messaging.Publish[analytics.LinkCreatedEvent],
	clock shortener.Clock,
	baseURL string,
	logger *zap.Logger,
) *LinkHandler {
	return &LinkHandler{
		service:        service,
		sweeper:        sweeper,
		clicks:         clicks,
		publishCreated: publishCreated,
		now:            clock,
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         logger,
	}
}

func (h *LinkHandler) Shorten(ctx context.Context, req *ShortenRequest) (*ShortenResponse, error) {
	link, err := h.create(ctx, req.Body.URL, req.Body.CustomCode, req.Body.Expiry)
	if err != nil {
		return nil, err
	}

	resp := &ShortenResponse{Body: h.linkBody(link)}
	resp.Headers.Location = resp.Body.ShortURL

	return resp, nil
}

func (h *LinkHandler) Index(ctx context.Context, req *IndexRequest) (*IndexResponse, error) {
	resp := &IndexResponse{}

	if strings.TrimSpace(req.URL) == "" {
		h.sweeper.MaybeSweep(ctx)

		resp.Body.Message = landingMessage

		return resp, nil
	}

	link, err := h.create(ctx, req.URL, req.CustomCode, req.Expiry)
	if err != nil {
		return nil, err
	}

	body := h.linkBody(link)
	resp.Body.Message = "Short link created."
	resp.Body.Link = &body

	return resp, nil
}

func (h *LinkHandler) Home(ctx context.Context, _ *struct{}) (*HomeResponse, error) {
	h.sweeper.MaybeSweep(ctx)

	resp := &HomeResponse{}
	resp.Body.Message = landingMessage
	resp.Body.Endpoints = []string{
		"POST /shorten",
		"GET /?url=",
		"GET /{code}",
		"GET /analytics?url=",
		"DELETE /delete",
	}

	return resp, nil
}

func (h *LinkHandler) Redirect(ctx context.Context, req *RedirectRequest) (*RedirectResponse, error) {
	code := shortener.Code(req.Code)

	link, err := h.service.Resolve(ctx, code)
	if err != nil {
		return nil, h.toHTTPError(err, code)
	}

	meta := RequestMetaFromContext(ctx)
	event := &analytics.LinkClickedEvent{
		Code:      req.Code,
		VisitorID: meta.ClientIP,
		ClickedAt: h.now(),
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	}

	if err := h.clicks.RecordClick(ctx, event); err != nil {
		h.logger.Error("failed to record click",
			zap.String("code", req.Code),
			zap.Error(err),
		)
	}

	resp := &RedirectResponse{Status: http.StatusFound}
	resp.Headers.Location = link.Destination
	resp.Headers.CacheControl = "no-store"

	return resp, nil
}

func (h *LinkHandler) Analytics(ctx context.Context, req *AnalyticsRequest) (*AnalyticsResponse, error) {
	code, err := CodeFromShortURL(req.URL)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	summary, err := h.service.Summarize(ctx, code)
	if err != nil {
		return nil, h.toHTTPError(err, code)
	}

	resp := &AnalyticsResponse{}
	resp.Body.Code = string(summary.Code)
	resp.Body.Destination = summary.Destination
	resp.Body.ExpiresAt = summary.ExpiresAt
	resp.Body.TotalClicks = summary.TotalClicks
	resp.Body.UniqueVisitors = summary.UniqueVisitors
	resp.Body.TimeHistory = summary.TimeHistory

	return resp, nil
}

func (h *LinkHandler) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	code, err := CodeFromShortURL(req.Body.URL)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.service.Delete(ctx, code); err != nil {
		return nil, h.toHTTPError(err, code)
	}

	resp := &DeleteResponse{}
	resp.Body.Code = string(code)
	resp.Body.Message = "Short link deleted."

	return resp, nil
}

func (h *LinkHandler) create(ctx context.Context, destination, customCode, expiry string) (*shortener.Link, error) {
	code := shortener.Code(strings.TrimSpace(customCode))
	if shortener.IsReserved(code) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("custom code %q is reserved", code))
	}

	link, err := h.service.Create(ctx, shortener.CreateRequest{
		Destination:  strings.TrimSpace(destination),
		CustomCode:   code,
		ExpiryPeriod: expiry,
	})
	if err != nil {
		return nil, h.toHTTPError(err, code)
	}

	meta := RequestMetaFromContext(ctx)
	event := &analytics.LinkCreatedEvent{
		Code:        string(link.Code),
		Destination: link.Destination,
		Custom:      code != "",
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
		ClientIP:    meta.ClientIP,
		UserAgent:   meta.UserAgent,
	}

	if err := h.publishCreated(ctx, event); err != nil {
		h.logger.Error("failed to publish link created event",
			zap.String("code", event.Code),
			zap.Error(err),
		)
	}

	return link, nil
}

func (h *LinkHandler) linkBody(link *shortener.Link) LinkBody {
	return LinkBody{
		Code:        string(link.Code),
		ShortURL:    h.baseURL + "/" + string(link.Code),
		Destination: link.Destination,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
	}
}

func (h *LinkHandler) toHTTPError(err error, code shortener.Code) error {
	switch {
	case errors.Is(err, shortener.ErrCodeTaken):
		return huma.Error409Conflict(fmt.Sprintf("code %q is already in use", code))
	case errors.Is(err, shortener.ErrInvalidCode),
		errors.Is(err, shortener.ErrInvalidExpiryPeriod),
		errors.Is(err, shortener.ErrEmptyDestination):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, shortener.ErrNotFound):
		return huma.Error404NotFound("short link not found")
	case errors.Is(err, shortener.ErrExpired):
		return huma.Error410Gone("short link has expired")
	default:
		h.logger.Error("link operation failed", zap.String("code", string(code)), zap.Error(err))

		return huma.Error500InternalServerError("internal server error")
	}
}

// CodeFromShortURL accepts a full short URL or a bare code and returns the code.
// Input without a scheme is read as a path, so "host:port/code" works too.
func CodeFromShortURL(raw string) (shortener.Code, error) {
	path := strings.TrimSpace(raw)

	if strings.Contains(path, "://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("short url %q is not a valid url: %w", raw, err)
		}

		path = parsed.Path
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		return "", fmt.Errorf("short url %q has no code", raw)
	}

	code := shortener.Code(path[strings.LastIndex(path, "/")+1:])

	if err := shortener.ValidateCode(code); err != nil {
		return "", fmt.Errorf("short url %q does not contain a valid code", raw)
	}

	return code, nil
}
