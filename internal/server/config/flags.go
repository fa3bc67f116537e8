package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/cofounder/internal/flagx"
	"github.com/dmitrijs2005/cofounder/internal/timex"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3001")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t string   access token validity ("7d", "12h")
//	-r string   refresh token validity ("30d")
//	-o string   allowed CORS origin
//	-w string   rate limit window ("15m")
//	-m int      max requests per window
//	-R string   Redis URL for shared rate limiting
//	-l string   log level
//	-f string   YAML seed file
//
// args are filtered with flagx.FilterArgs first so that -c/-config and
// flags owned by other components do not make parsing fail.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-s", "-t", "-r", "-o", "-w", "-m", "-R", "-l", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	fs.StringVar(&config.CORSOrigin, "o", config.CORSOrigin, "allowed CORS origin")
	fs.IntVar(&config.RateLimitMaxRequests, "m", config.RateLimitMaxRequests, "max requests per rate limit window")
	fs.StringVar(&config.RedisURL, "R", config.RedisURL, "redis URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.SeedFile, "f", config.SeedFile, "YAML seed file")

	fs.Func("t", "access token validity", func(s string) (err error) {
		config.AccessTokenValidityDuration, err = timex.ParseDuration(s)
		return err
	})
	fs.Func("r", "refresh token validity", func(s string) (err error) {
		config.RefreshTokenValidityDuration, err = timex.ParseDuration(s)
		return err
	})
	fs.Func("w", "rate limit window", func(s string) (err error) {
		config.RateLimitWindow, err = timex.ParseDuration(s)
		return err
	})

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
