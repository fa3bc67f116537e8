package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/httputil"
	"github.com/dmitrijs2005/cofounder/internal/server/metrics"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/gorilla/mux"
)

// Deps are the collaborators of the HTTP API. Limiter, Health, Metrics and
// WebSocket are optional.
type Deps struct {
	Auth          AuthAPI
	Authenticator *middleware.Authenticator
	Limiter       middleware.Limiter
	Health        *HealthChecker
	Metrics       *metrics.Metrics
	WebSocket     http.Handler
	Logger        logging.Logger

	CORSOrigin   string
	MaxBodyBytes int64
}

// NewRouter builds the complete HTTP handler.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.AccessLog(d.Logger, d.Metrics))

	if d.Health == nil {
		d.Health = NewHealthChecker(nil)
	}
	r.Handle("/health", d.Health).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}
	if d.WebSocket != nil {
		r.Handle("/ws", d.WebSocket)
	}

	api := r.PathPrefix("/api").Subrouter()
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter, d.Logger, d.Metrics))
	}

	NewAuthHandlers(d.Auth, d.Authenticator, d.Logger).RegisterRoutes(api.PathPrefix("/auth").Subrouter())
	NewAdminHandlers(d.Auth, d.Authenticator, d.Logger).RegisterRoutes(api.PathPrefix("/admin").Subrouter())

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	mws := []func(http.Handler) http.Handler{
		middleware.Recovery(d.Logger),
		middleware.RequestID,
		middleware.CORS(d.CORSOrigin),
	}
	if d.MaxBodyBytes > 0 {
		mws = append(mws, middleware.MaxBytes(d.MaxBodyBytes))
	}
	return middleware.Chain(r, mws...)
}
