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

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminID = uuid.MustParse("7c1d2f9e-8f4a-4b8e-9a51-0d3c2b1a9e10")

func newTestAPI(t *testing.T) *API {
	t.Helper()
	cfg := &Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		StoreDriver:        StoreDriverMemory,
		ToggleGuardTTL:     time.Second,
		AuthzEnforce:       true,
		RateLimitPerMinute: 1000,
		BootstrapAdminID:   adminID.String(),
	}
	require.NoError(t, cfg.Validate())
	api, err := NewAPI(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(api.Close)
	return api
}

func do(t *testing.T, h http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rr := do(t, api.Handler, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = do(t, api.Handler, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leads_http_requests_total")
}

func TestRouterEnforcesScopes(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, api.Handler, http.MethodGet, "/api/roles", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, api.Handler, http.MethodGet, "/api/roles", "not-a-uuid", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, api.Handler, http.MethodGet, "/api/roles", uuid.NewString(), "").Code)

	rr := do(t, api.Handler, http.MethodGet, "/api/roles", adminID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"ADMIN"`)

	rr = do(t, api.Handler, http.MethodGet, "/api/users/"+adminID.String()+"/effective-scopes", adminID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"scope_code":"audit:read"`)
}

func TestRouterAuditsMutations(t *testing.T) {
	api := newTestAPI(t)
	admin := adminID.String()

	rr := do(t, api.Handler, http.MethodPost, "/api/roles", admin, `{"name":"Closer","code":"closer"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, api.Handler, http.MethodGet, "/api/audit?entity_type=role", admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action":"create"`)
	assert.Contains(t, rr.Body.String(), admin)

	rr = do(t, api.Handler, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, rr.Body.String(), `leads_permission_mutations_total{action="create",entity="role"} 1`)
}

func TestRouterJobsWithoutRedis(t *testing.T) {
	api := newTestAPI(t)

	rr := do(t, api.Handler, http.MethodGet, "/api/jobs/health", adminID.String(), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, api.Handler, http.MethodPost, "/api/jobs/integrity-scan", adminID.String(), "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	rr := do(t, api.Handler, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
