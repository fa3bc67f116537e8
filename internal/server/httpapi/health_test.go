package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthChecker) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var st HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return rec.Code, st
}

func TestHealth_NoDependencies(t *testing.T) {
	h := NewHealthChecker(nil)
	h.started = time.Now().Add(-90 * time.Second)

	code, st := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, st.Status)
	assert.InDelta(t, 90, st.Uptime, 5)
	assert.WithinDuration(t, time.Now(), st.Timestamp, 5*time.Second)
	assert.Empty(t, st.Dependencies)
}

func TestHealth_Dependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHealthChecker(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
	})

	code, st := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, st.Dependencies["redis"].Status)
	assert.Equal(t, StatusOK, st.Dependencies["database"].Status)

	mr.Close()

	code, st = serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, StatusError, st.Dependencies["redis"].Status)
	assert.NotEmpty(t, st.Dependencies["redis"].Message)
	assert.Equal(t, StatusOK, st.Dependencies["database"].Status)
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	code, st := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", st.Dependencies["database"].Message)
}
