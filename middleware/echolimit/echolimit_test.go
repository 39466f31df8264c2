package echolimit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajiwo/admission"
	"github.com/ajiwo/admission/backends/memory"
	"github.com/ajiwo/admission/middleware"
)

func newEcho(t *testing.T, limit int, opts ...middleware.Option) *echo.Echo {
	t.Helper()
	gate, err := admission.New(
		admission.WithBackend(memory.New()),
		admission.WithQuota(limit, time.Hour),
		admission.WithFailPolicy(admission.FailClosed),
		admission.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, New(gate, opts...))
	e.GET("/unprotected", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func get(e *echo.Echo, path, realIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(echo.HeaderXRealIP, realIP)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestEcho_QuotaThenTooManyRequests(t *testing.T) {
	e := newEcho(t, 3)

	for i := range 3 {
		rec := get(e, "/", "203.0.113.5")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "3", rec.Header().Get(middleware.HeaderLimit))
	}

	rec := get(e, "/", "203.0.113.5")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRetryAfter))

	assert.Equal(t, http.StatusOK, get(e, "/", "203.0.113.6").Code, "other client is unaffected")
	assert.Equal(t, http.StatusOK, get(e, "/unprotected", "203.0.113.5").Code)
}

func TestEcho_CustomIdentity(t *testing.T) {
	e := newEcho(t, 1, middleware.WithIdentity(middleware.Header("X-API-Key")))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "key-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i+1)
	}
}
