package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caredraft/config"
	"caredraft/internal/ratelimit"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.PathEnv, "")
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("DEADLINES_ENABLED", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNew_ServesAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Classes.General.MaxRequests = 1

	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"title":"Tender"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(ratelimit.HeaderLimit))

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNew_RateLimitDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = false

	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(ratelimit.HeaderLimit))
}

func TestNew_RedisBackendWithoutURLFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Backend = ratelimit.BackendRedis
	cfg.RateLimit.RedisURL = ""

	_, err := New(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestNew_InvalidBodySizeLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.BodySizeLimit = "lots"

	_, err := New(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestDeadlinesExpireThroughApp(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	body := `{"title":"Overdue tender","deadline":"2000-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	report, err := a.Deadlines().Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Expired, 1)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents?status=expired", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Overdue tender")
}
