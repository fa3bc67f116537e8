package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cofounder/internal/flagx"
	"github.com/dmitrijs2005/cofounder/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Duration fields use
// timex.Duration so both "7d" style strings and integer nanoseconds work.
// Zero values leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	CORSOrigin                   string         `json:"cors_origin"`
	RateLimitWindow              timex.Duration `json:"rate_limit_window"`
	RateLimitMaxRequests         int            `json:"rate_limit_max_requests"`
	RedisURL                     string         `json:"redis_url"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
	SeedFile                     string         `json:"seed_file"`
}

// parseJson loads the file named by -c / -config, if any, and copies the
// non-zero values into config. An unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFileFlag(args)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CORSOrigin, c.CORSOrigin)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.SeedFile, c.SeedFile)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RateLimitWindow.Duration > 0 {
		config.RateLimitWindow = c.RateLimitWindow.Duration
	}
	if c.RateLimitMaxRequests > 0 {
		config.RateLimitMaxRequests = c.RateLimitMaxRequests
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
