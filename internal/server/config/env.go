package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/timex"
)

// parseEnv overlays values from the process environment. Variable names
// follow the deployment conventions of the dashboard backend, e.g.
// JWT_SECRET and JWT_EXPIRES_IN=7d. RATE_LIMIT_WINDOW_MS is in
// milliseconds. Unparseable values panic.
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("DATABASE_URL", &config.DatabaseDSN)
	str("JWT_SECRET", &config.SecretKey)
	str("CORS_ORIGIN", &config.CORSOrigin)
	str("REDIS_URL", &config.RedisURL)
	str("LOG_LEVEL", &config.LogLevel)
	str("LOG_FORMAT", &config.LogFormat)
	str("SEED_FILE", &config.SeedFile)

	if v, ok := lookup("JWT_EXPIRES_IN"); ok && v != "" {
		config.AccessTokenValidityDuration = mustDuration("JWT_EXPIRES_IN", v)
	}
	if v, ok := lookup("JWT_REFRESH_EXPIRES_IN"); ok && v != "" {
		config.RefreshTokenValidityDuration = mustDuration("JWT_REFRESH_EXPIRES_IN", v)
	}
	if v, ok := lookup("RATE_LIMIT_WINDOW_MS"); ok && v != "" {
		config.RateLimitWindow = time.Duration(mustInt("RATE_LIMIT_WINDOW_MS", v)) * time.Millisecond
	}
	if v, ok := lookup("RATE_LIMIT_MAX_REQUESTS"); ok && v != "" {
		config.RateLimitMaxRequests = mustInt("RATE_LIMIT_MAX_REQUESTS", v)
	}
}

func mustDuration(key, v string) time.Duration {
	d, err := timex.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func mustInt(key, v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	return n
}
