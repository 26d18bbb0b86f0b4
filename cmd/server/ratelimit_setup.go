package main

import (
	"errors"

	"github.com/noetl/noetl/common/bootstrap"
	"github.com/noetl/noetl/common/ratelimit"
)

// buildRateLimiter wires the admission-rate limiter described in
// SPEC_FULL's rate-limiting section over the bootstrap process's Redis
// client. A nil RawRedis (e.g. WithoutRedis in a test harness) disables
// rate limiting rather than failing startup.
func buildRateLimiter(components *bootstrap.Components) (*ratelimit.RateLimiter, error) {
	if components.RawRedis == nil {
		return nil, errors.New("no redis client configured")
	}
	return ratelimit.NewRateLimiter(components.RawRedis, components.Logger), nil
}

func catalogLimitFromConfig() ratelimit.CatalogConfig {
	return ratelimit.DefaultCatalogConfig
}

func globalLimitFromConfig() ratelimit.GlobalConfig {
	return ratelimit.DefaultGlobalConfig
}
