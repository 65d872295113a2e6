package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trekgear/gearstock/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/gearstock")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3, cfg.ReceivingMaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.ReceivingRetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, "30 2 * * *", cfg.StockAuditCron)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadRetrySettings(t *testing.T) {
	t.Setenv("RECEIVING_MAX_ATTEMPTS", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "nope")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "staging"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"service":"gearstock"`)
	assert.Contains(t, buf.String(), `"env":"staging"`)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestRouterHealthAndMetrics(t *testing.T) {
	cfg := &Config{AppRequestTimeout: time.Second, RateLimitPerMin: 100}
	router := NewRouter(RouterParams{Config: cfg, Metrics: observability.NewMetrics(), DB: stubPinger{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `gearstock_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestRouterHealthDegradedWithoutDatabase(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}, DB: stubPinger{err: errors.New("refused")}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterRateLimit(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{RateLimitPerMin: 2}})
	var last int
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRouterAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := NewRouter(RouterParams{Logger: logger, Config: &Config{}, DB: stubPinger{err: errors.New("refused")}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	out := buf.String()
	assert.Contains(t, out, `"msg":"http request"`)
	assert.Contains(t, out, `"path":"/healthz"`)
	assert.Contains(t, out, `"status":503`)
	assert.Contains(t, out, `"level":"ERROR"`)
}
