package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/server/httputil"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function, e.g. (*sql.DB).PingContext, to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Uptime       float64                     `json:"uptime"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of probing one dependency.
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthChecker reports process uptime and the state of its dependencies.
type HealthChecker struct {
	started time.Time
	checks  map[string]Pinger
	timeout time.Duration
	now     func() time.Time
}

func NewHealthChecker(checks map[string]Pinger) *HealthChecker {
	return &HealthChecker{
		started: time.Now(),
		checks:  checks,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Check probes every dependency. The overall status is StatusError if any
// of them fails.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := h.now()
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
	}
	if len(h.checks) == 0 {
		return status
	}

	status.Dependencies = make(map[string]DependencyStatus, len(h.checks))
	for name, p := range h.checks {
		start := time.Now()
		err := p.Ping(ctx)
		dep := DependencyStatus{Status: StatusOK, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			dep.Status = StatusError
			dep.Message = err.Error()
			status.Status = StatusError
		}
		status.Dependencies[name] = dep
	}
	return status
}

// ServeHTTP handles GET /health.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if status.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	_ = httputil.WriteJSON(w, code, status)
}
