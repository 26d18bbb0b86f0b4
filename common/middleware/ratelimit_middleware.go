package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service header to bypass rate limits.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		expectedSecret = "default-internal-secret-change-in-prod"
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimitMiddleware checks the service-wide admission limit across
// every catalog entry. Skips internal service-to-service calls.
func GlobalRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, cfg ratelimit.GlobalConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), cfg.Limit, cfg.WindowSeconds)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "service is experiencing high load, try again later",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window_seconds":      cfg.WindowSeconds,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// runPlaybookBody is the subset of `POST /api/run/playbook`'s body this
// middleware needs to key the per-catalog limiter (spec §6).
type runPlaybookBody struct {
	Path string `json:"path"`
}

// CatalogRateLimitMiddleware checks the per-catalog-entry admission limit
// guarding `POST /api/run/playbook` so one heavily-invoked playbook cannot
// starve admission for another. Reads `path` out of the body without
// consuming it, so the handler still sees the full request.
func CatalogRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, cfg ratelimit.CatalogConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			raw, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return next(c)
			}
			c.Request().Body = io.NopCloser(bytes.NewReader(raw))

			var body runPlaybookBody
			if err := json.Unmarshal(raw, &body); err != nil || body.Path == "" {
				return next(c)
			}

			result, err := rateLimiter.CheckCatalogLimit(c.Request().Context(), body.Path, cfg.Limit, cfg.WindowSeconds)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "catalog_rate_limit_exceeded",
					"message": "this playbook has exceeded its execution admission rate, try again later",
					"details": map[string]interface{}{
						"path":                body.Path,
						"limit":               result.Limit,
						"window_seconds":      cfg.WindowSeconds,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
