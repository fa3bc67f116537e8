// Package server initializes and runs the auth server: it opens the user
// store, runs migrations and seeding, and serves the HTTP API, the
// WebSocket endpoint and the gRPC service until it receives a signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/config"
	"github.com/dmitrijs2005/cofounder/internal/server/httpapi"
	"github.com/dmitrijs2005/cofounder/internal/server/metrics"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cofounder/internal/server/seed"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"github.com/dmitrijs2005/cofounder/internal/server/ws"
	"github.com/go-redis/redis/v8"

	gs "github.com/dmitrijs2005/cofounder/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	metrics     *metrics.Metrics
	authService *services.AuthService
	authn       *middleware.Authenticator
	hub         *ws.Hub
	limiter     middleware.Limiter
	health      *httpapi.HealthChecker
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)
	app := &App{config: c, logger: logger, metrics: metrics.New()}

	rm, err := app.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, app.db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	hasher := auth.NewBcryptHasher()
	issuer := auth.NewIssuer(auth.Config{
		Secret:     []byte(c.SecretKey),
		AccessTTL:  c.AccessTokenValidityDuration,
		RefreshTTL: c.RefreshTokenValidityDuration,
	}, logger)

	app.authService = services.NewAuthService(app.db, rm, hasher, issuer, logger, app.metrics)

	if c.SeedFile != "" {
		n, err := seed.NewSeeder(app.db, app.authService, logger).SeedFromFile(ctx, c.SeedFile)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("seed error: %w", err)
		}
		logger.Info(ctx, "Seed file applied", "path", c.SeedFile, "created", n)
	}

	app.authn = middleware.NewAuthenticator(issuer, app.authService, logger)
	app.hub = ws.NewHub(logger, app.metrics)

	checks := map[string]httpapi.Pinger{}
	if app.db != nil {
		checks["database"] = httpapi.PingFunc(app.db.PingContext)
	}

	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		app.redis = redis.NewClient(opts)
		rl := middleware.NewRedisLimiter(app.redis, c.RateLimitMaxRequests, c.RateLimitWindow, "cofounder:ratelimit")
		if err := rl.Ping(ctx); err != nil {
			logger.Warn(ctx, "Redis is unreachable, rate limiting will fail open until it recovers", "error", err)
		}
		app.limiter = rl
		checks["redis"] = rl
	} else {
		app.limiter = middleware.NewMemoryLimiter(c.RateLimitMaxRequests, c.RateLimitWindow)
	}
	app.health = httpapi.NewHealthChecker(checks)

	return app, nil
}

// openStore connects to the configured store. The memory:// DSN selects
// the in-memory store and leaves app.db nil.
func (app *App) openStore(ctx context.Context) (repomanager.RepositoryManager, error) {
	db, rm, err := repomanager.Connect(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if db == nil {
		app.logger.Warn(ctx, "Using the in-memory user store; data is lost on restart")
	}
	app.db = db
	return rm, nil
}

// Handler returns the complete HTTP handler of the app.
func (app *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Auth:          app.authService,
		Authenticator: app.authn,
		Limiter:       app.limiter,
		Health:        app.health,
		Metrics:       app.metrics,
		WebSocket:     ws.NewHandler(app.hub, app.authn, app.config.CORSOrigin, app.logger),
		Logger:        app.logger,
		CORSOrigin:    app.config.CORSOrigin,
		MaxBodyBytes:  app.config.MaxBodyBytes,
	})
}

// Hub is used by other components to push real-time events to users.
func (app *App) Hub() *ws.Hub { return app.hub }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.Handler(), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService, app.authn)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails,
// then releases the app's resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close drops WebSocket clients and closes the database and Redis clients.
func (app *App) Close() {
	if app.hub != nil {
		app.hub.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}
