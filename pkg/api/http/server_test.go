package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	"github.com/aescanero/shiptrack/internal/application/simulation"
	metrics "github.com/aescanero/shiptrack/pkg/adapters/metrics/prometheus"
	ordermem "github.com/aescanero/shiptrack/pkg/adapters/orderstore/memory"
	"github.com/aescanero/shiptrack/pkg/adapters/routing/direct"
	"github.com/aescanero/shiptrack/pkg/adapters/session"
	"github.com/aescanero/shiptrack/pkg/adapters/storage/memory"
	api "github.com/aescanero/shiptrack/pkg/api/http"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const beginBody = `{"origin":[114.30,30.59],"destination":[114.87,30.45]}`

type testServer struct {
	server  *api.Server
	orders  *ordermem.InMemoryOrderStore
	manager *orchestrator.Manager
}

func newTestServer(t *testing.T, checks map[string]api.HealthCheck, tokens ...string) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	engine := simulation.NewEngine(&simulation.Config{
		Router:  direct.NewRouter(),
		Store:   memory.NewInMemoryRunStorage(),
		Metrics: collector,
		Logger:  zap.NewNop(),
	})
	orders := ordermem.NewInMemoryOrderStore()
	manager := orchestrator.NewManager(&orchestrator.Config{
		Simulations:  simulation.NewLocalService(engine),
		Orders:       orders,
		Metrics:      collector,
		Logger:       zap.NewNop(),
		PollInterval: time.Hour,
		CallTimeout:  time.Second,
	})
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	sessions, err := session.NewTokenValidator(tokens)
	require.NoError(t, err)

	server := api.NewServer(&api.Config{
		Orchestrator: manager,
		Orders:       orders,
		Sessions:     sessions,
		Gatherer:     reg,
		Checks:       checks,
		Logger:       zap.NewNop(),
	})

	return &testServer{server: server, orders: orders, manager: manager}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, map[string]api.HealthCheck{
		"redis": func(ctx context.Context) error { return nil },
	})

	rec, payload := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])
	checks := payload["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["tracking"])
	assert.Equal(t, "ok", checks["redis"])
}

func TestServer_HealthReportsFailingDependency(t *testing.T) {
	ts := newTestServer(t, map[string]api.HealthCheck{
		"postgres": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rec, payload := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", payload["status"])
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, nil)
	_, _ = ts.do(t, http.MethodPost, "/api/v1/shipments/1/tracking", beginBody)

	rec, _ := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shiptrack_simulations_started_total")
}

func TestServer_BeginTracking(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, payload := ts.do(t, http.MethodPost, "/api/v1/shipments/1/tracking", beginBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1", payload["orderId"])
	assert.Equal(t, "packing", payload["status"])
	snapshot := payload["snapshot"].(map[string]interface{})
	assert.Equal(t, []interface{}{114.30, 30.59}, snapshot["location"])
	assert.True(t, ts.manager.IsPolling("1"))

	milestones, err := ts.orders.Milestones(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, domain.StatusPacking, milestones[0].Status)
}

func TestServer_BeginTrackingErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing destination", body: `{"origin":[114.30,30.59]}`, code: http.StatusBadRequest},
		{name: "malformed point", body: `{"origin":[114.30],"destination":[114.87,30.45]}`, code: http.StatusBadRequest},
		{name: "out of range", body: `{"origin":[114.30,95],"destination":[114.87,30.45]}`, code: http.StatusBadRequest},
		{name: "bad config", body: `{"origin":[114.30,30.59],"destination":[114.87,30.45],"config":{"speedKmh":-5,"tickIntervalMs":1000}}`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, payload := ts.do(t, http.MethodPost, "/api/v1/shipments/1/tracking", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, payload, "error")
		})
	}

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/shipments/2/tracking", beginBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, payload := ts.do(t, http.MethodPost, "/api/v1/shipments/2/tracking", beginBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_TRACKING", payload["error"].(map[string]interface{})["code"])
}

func TestServer_PositionAndCancel(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/shipments/1/position", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/shipments/1/tracking", beginBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, payload := ts.do(t, http.MethodGet, "/api/v1/shipments/1/position", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := payload["snapshot"].(map[string]interface{})
	assert.Greater(t, snapshot["totalDistanceMeters"], 50000.0)

	rec, payload = ts.do(t, http.MethodDelete, "/api/v1/shipments/1/tracking", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", payload["status"])
	assert.False(t, ts.manager.IsPolling("1"))

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/shipments/1/tracking", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Milestones(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, payload := ts.do(t, http.MethodGet, "/api/v1/shipments/9/milestones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, payload["milestones"])

	require.NoError(t, ts.orders.AppendMilestone(context.Background(), domain.Milestone{
		OrderID: "9",
		Status:  domain.StatusDelivered,
	}))

	rec, payload = ts.do(t, http.MethodGet, "/api/v1/shipments/9/milestones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["milestones"], 1)
}

func TestServer_RequiresSessionWhenConfigured(t *testing.T) {
	ts := newTestServer(t, nil, "alice:s3cret")

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/shipments/1/milestones", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/shipments/1/milestones?token=s3cret", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public.
	rec, _ = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodOptions, "/api/v1/shipments/1/tracking", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_EngineOnlyModeHidesShipmentRoutes(t *testing.T) {
	server := api.NewServer(&api.Config{
		Gatherer: prometheus.NewRegistry(),
		Logger:   zap.NewNop(),
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shipments/1/position", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
