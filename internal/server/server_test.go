package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/middleware"
	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/profiles"
	"github.com/tributary-ai/routing-engine/internal/registry"
	"github.com/tributary-ai/routing-engine/internal/routing"
	"github.com/tributary-ai/routing-engine/internal/scoring"
	"github.com/tributary-ai/routing-engine/internal/types"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testServer struct {
	srv     *Server
	reg     *registry.Registry
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, engine.Config{EnableDegradedMode: true}, nil)
}

func newTestServerWith(t *testing.T, engCfg engine.Config, validation *middleware.ValidationConfig) *testServer {
	t.Helper()
	logger := newTestLogger()

	reg := registry.New(logger)
	registry.SeedDefaults(reg)
	tracker := isolation.NewTracker(nil, reg, logger)

	store, err := profiles.NewStore("", logger)
	require.NoError(t, err)
	profMgr := profiles.NewManager(store, reg, logger)

	capRouter := routing.NewCapabilityRouter(reg, tracker, profMgr, logger)
	scorer := scoring.NewScorer(reg, logger)
	policies := policy.NewManager("", logger)
	eng := engine.New(reg, capRouter, scorer, policies, tracker, engCfg, logger)

	cfg := &ServerConfig{
		Port:           "8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Validation:     validation,
	}
	srv, err := NewServer(Dependencies{
		Engine:       eng,
		Capabilities: capRouter,
		Policies:     policies,
		Profiles:     profMgr,
		Registry:     reg,
	}, cfg, logger)
	require.NoError(t, err)

	return &testServer{srv: srv, reg: reg, handler: srv.setupRoutes()}
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) requestRaw(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), "body: %s", rr.Body.String())
}

func (ts *testServer) markAllUnhealthy() {
	for _, name := range ts.reg.ListProviders(false) {
		ts.reg.SetHealth(types.HealthKeyProvider(name), &types.HealthStatus{Status: types.HealthUnhealthy})
	}
	for _, name := range ts.reg.ListRuntimes(false) {
		ts.reg.SetHealth(types.HealthKeyRuntime(name), &types.HealthStatus{Status: types.HealthUnhealthy})
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Dependencies{}, &ServerConfig{Port: "8080"}, newTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestHandleRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{"prompt": "hello"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var decision engine.RouteDecision
	decodeBody(t, rr, &decision)
	assert.Equal(t, "openai", decision.Provider)
	assert.Equal(t, "vllm", decision.Runtime)
	assert.Equal(t, "gpt-4o-mini", decision.Model)
	assert.InDelta(t, 1.0, decision.Confidence, 0.001)
	assert.NotEmpty(t, decision.ID)
	assert.NotEmpty(t, decision.RequestID, "server should assign a request ID when none is supplied")
}

func TestHandleRoute_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.requestRaw(t, http.MethodPost, "/v1/route", "application/json", "{not json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var envelope map[string]interface{}
	decodeBody(t, rr, &envelope)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "body: %s", rr.Body.String())
	assert.Equal(t, "api_error", errObj["type"])
	assert.Contains(t, errObj["message"], "Invalid JSON")
}

func TestHandleRoute_NoViableRoute(t *testing.T) {
	ts := newTestServerWith(t, engine.Config{EnableDegradedMode: false}, nil)
	ts.markAllUnhealthy()

	rr := ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{"prompt": "hello"})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "no viable")
}

func TestHandleDryRun(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/route/dry-run", map[string]interface{}{
		"prompt":             "hi",
		"preferred_provider": "openai",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report engine.DryRunReport
	decodeBody(t, rr, &report)
	require.NotNil(t, report.FinalRecommendation)
	assert.Equal(t, "openai", report.FinalRecommendation.Provider)
	assert.NotEmpty(t, report.RoutingSteps)
	assert.Len(t, report.AvailableProviders, 6)

	// Dry runs must not count toward stats.
	var stats engine.StatsReport
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/stats", nil), &stats)
	assert.Equal(t, int64(0), stats.TotalRequests)
}

func TestHandleOutcome(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/outcomes", map[string]interface{}{
		"provider":      "openai",
		"runtime":       "vllm",
		"model":         "gpt-4o",
		"success":       true,
		"response_time": 0.42,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]interface{}
	decodeBody(t, rr, &resp)
	assert.Equal(t, "recorded", resp["status"])
	assert.Equal(t, "openai", resp["provider"])
}

func TestHandleOutcome_MissingProvider(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/outcomes", map[string]interface{}{"success": true})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "provider is required")
}

func TestStatsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{"prompt": "hello"})

	var stats engine.StatsReport
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/stats", nil), &stats)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRoutes)
	assert.Equal(t, "balanced", stats.ActivePolicy)
	assert.NotEmpty(t, stats.PolicyWeights)

	rr := ts.request(t, http.MethodPost, "/v1/stats/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "reset")

	decodeBody(t, ts.request(t, http.MethodGet, "/v1/stats", nil), &stats)
	assert.Equal(t, int64(0), stats.TotalRequests)
}

func TestPolicyEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var list struct {
		Policies []string `json:"policies"`
		Active   string   `json:"active"`
		Count    int      `json:"count"`
	}
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/policies", nil), &list)
	assert.Equal(t, []string{"privacy_first", "performance_first", "cost_optimized", "balanced", "default"}, list.Policies)
	assert.Equal(t, "balanced", list.Active)
	assert.Equal(t, 5, list.Count)

	var info engine.PolicyInfo
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/policy", nil), &info)
	assert.Equal(t, "balanced", info.Name)
	assert.InDelta(t, 0.25, info.Weights["cost"], 0.001)

	rr := ts.request(t, http.MethodPut, "/v1/policy", map[string]interface{}{"policy": "privacy_first"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var updated map[string]interface{}
	decodeBody(t, rr, &updated)
	assert.Equal(t, "privacy_first", updated["active"])
	assert.Equal(t, "balanced", updated["previous"])

	decodeBody(t, ts.request(t, http.MethodGet, "/v1/policy", nil), &info)
	assert.Equal(t, "privacy_first", info.Name)
}

func TestPolicyEndpoints_Errors(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPut, "/v1/policy", map[string]interface{}{"policy": "ghost"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(t, http.MethodPut, "/v1/policy", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "policy name is required")
}

func TestProviderEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var list struct {
		Providers []string `json:"providers"`
		Count     int      `json:"count"`
	}
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/providers", nil), &list)
	assert.Equal(t, []string{"openai", "gemini", "deepseek", "anthropic", "huggingface", "local"}, list.Providers)
	assert.Equal(t, 6, list.Count)

	rr := ts.request(t, http.MethodGet, "/v1/providers/openai", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var detail struct {
		Name   string             `json:"name"`
		Spec   types.ProviderSpec `json:"spec"`
		Models []types.ModelInfo  `json:"models"`
		Health types.HealthStatus `json:"health"`
	}
	decodeBody(t, rr, &detail)
	assert.Equal(t, "openai", detail.Name)
	assert.Equal(t, "vllm", detail.Spec.DefaultRuntime)
	assert.Len(t, detail.Models, 3)
	assert.Equal(t, types.HealthUnknown, detail.Health.Status)
}

func TestProviderEndpoints_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodGet, "/v1/providers/ghost", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Provider ghost not found")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var payload struct {
		Status string              `json:"status"`
		Health engine.HealthReport `json:"health"`
	}
	rr := ts.request(t, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &payload)
	assert.Equal(t, "healthy", payload.Status)
	assert.Equal(t, 0, payload.Health.Summary.UnhealthyComponents)

	// Root alias for load balancers.
	rr = ts.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	ts := newTestServer(t)
	ts.reg.SetHealth(types.HealthKeyProvider("gemini"), &types.HealthStatus{Status: types.HealthUnhealthy})

	var payload struct {
		Status string              `json:"status"`
		Health engine.HealthReport `json:"health"`
	}
	rr := ts.request(t, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	decodeBody(t, rr, &payload)
	assert.Equal(t, "degraded", payload.Status)
	assert.Equal(t, 1, payload.Health.Summary.UnhealthyComponents)
	assert.Contains(t, payload.Health.UnhealthyComponents, "provider:gemini")
}

func TestComponentHealth(t *testing.T) {
	ts := newTestServer(t)

	var payload struct {
		Component string             `json:"component"`
		Kind      string             `json:"kind"`
		Health    types.HealthStatus `json:"health"`
	}
	rr := ts.request(t, http.MethodGet, "/v1/health/openai", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &payload)
	assert.Equal(t, "openai", payload.Component)
	assert.Equal(t, "provider", payload.Kind)
	assert.Equal(t, types.HealthUnknown, payload.Health.Status)

	rr = ts.request(t, http.MethodGet, "/v1/health/vllm", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &payload)
	assert.Equal(t, "runtime", payload.Kind)

	rr = ts.request(t, http.MethodGet, "/v1/health/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCapabilitiesMatrix(t *testing.T) {
	ts := newTestServer(t)

	var payload struct {
		Capabilities map[string][]string `json:"capabilities"`
		Count        int                 `json:"count"`
	}
	rr := ts.request(t, http.MethodGet, "/v1/capabilities", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &payload)
	assert.Equal(t, 6, payload.Count)
	assert.Contains(t, payload.Capabilities["openai"], "vision")
	assert.NotContains(t, payload.Capabilities["local"], "vision")
}

func TestCapabilityRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/capabilities/route", map[string]interface{}{
		"request":               map[string]interface{}{"prompt": "describe the image"},
		"required_capabilities": []string{"vision"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var payload struct {
		Decision engine.RouteDecision            `json:"decision"`
		Result   routing.CapabilityRoutingResult `json:"result"`
	}
	decodeBody(t, rr, &payload)
	assert.True(t, payload.Result.Success)
	assert.Equal(t, "openai", payload.Result.Provider)
	assert.Equal(t, "openai", payload.Decision.Provider)
	assert.True(t, payload.Result.AchievedCapabilities.Has(types.CapabilityVision))
	assert.False(t, payload.Result.FallbackApplied)
}

func TestCapabilityRoute_NoViableProvider(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/capabilities/route", map[string]interface{}{
		"request":               map[string]interface{}{"prompt": "impossible"},
		"required_capabilities": []string{"vision", "batch_processing"},
		"allow_degradation":     false,
	})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())

	var envelope map[string]interface{}
	decodeBody(t, rr, &envelope)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "routing_error", errObj["type"])

	result, ok := envelope["result"].(map[string]interface{})
	require.True(t, ok, "failure responses should still carry the routing result")
	assert.Equal(t, false, result["success"])
}

func TestCapabilityRoute_UnknownCapability(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/capabilities/route", map[string]interface{}{
		"request":               map[string]interface{}{"prompt": "x"},
		"required_capabilities": []string{"teleport"},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "teleport")
}

func TestCapabilityCheck(t *testing.T) {
	ts := newTestServer(t)

	var result routing.CapabilityCheckResult
	rr := ts.request(t, http.MethodPost, "/v1/capabilities/check", map[string]interface{}{
		"provider":              "local",
		"required_capabilities": []string{"vision"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeBody(t, rr, &result)
	assert.False(t, result.HasRequiredCapabilities)
	assert.Contains(t, result.MissingCapabilities, types.CapabilityVision)

	rr = ts.request(t, http.MethodPost, "/v1/capabilities/check", map[string]interface{}{
		"provider":              "openai",
		"required_capabilities": []string{"vision"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &result)
	assert.True(t, result.HasRequiredCapabilities)

	rr = ts.request(t, http.MethodPost, "/v1/capabilities/check", map[string]interface{}{
		"provider":              "ghost",
		"required_capabilities": []string{"vision"},
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(t, http.MethodPost, "/v1/capabilities/check", map[string]interface{}{
		"required_capabilities": []string{"vision"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var list struct {
		Profiles map[string]json.RawMessage `json:"profiles"`
		Active   string                     `json:"active"`
		Count    int                        `json:"count"`
	}
	decodeBody(t, ts.request(t, http.MethodGet, "/v1/profiles", nil), &list)
	assert.Equal(t, "default", list.Active)
	assert.Contains(t, list.Profiles, "default")
	assert.Equal(t, 1, list.Count)

	rr := ts.request(t, http.MethodPut, "/v1/profiles/active", map[string]interface{}{"profile": "default"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(t, http.MethodPut, "/v1/profiles/active", map[string]interface{}{"profile": "ghost"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(t, http.MethodPut, "/v1/profiles/active", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "profile name is required")
}

func TestProfileDecision(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodPost, "/v1/profiles/decision", map[string]interface{}{
		"prompt":    "write a function",
		"task_type": "code",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var decision profiles.Decision
	decodeBody(t, rr, &decision)
	assert.Equal(t, "deepseek", decision.Provider)
	assert.Equal(t, "default", decision.Profile)
	assert.InDelta(t, 0.8, decision.Confidence, 0.001)
	assert.False(t, decision.FallbackApplied)
}

func TestContentTypeEnforcement(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.requestRaw(t, http.MethodPost, "/v1/route", "text/plain", "hello")
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Contains(t, rr.Body.String(), "Content-Type must be application/json")

	// GET requests are exempt from the content-type check.
	rr = ts.request(t, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{"prompt": "hello"})

	rr := ts.request(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "routing_decision_duration_seconds")
	assert.Contains(t, rr.Body.String(), "model_invocations_total")
}

func TestSwaggerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(t, http.MethodGet, "/docs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "swagger-ui")

	rr = ts.request(t, http.MethodGet, "/docs/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.3")

	rr = ts.request(t, http.MethodGet, "/docs/openapi.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]interface{}
	decodeBody(t, rr, &doc)
	assert.Equal(t, "3.0.3", doc["openapi"])
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/v1/route")
}

func TestRequestValidation_Enabled(t *testing.T) {
	ts := newTestServerWith(t, engine.Config{EnableDegradedMode: true}, &middleware.ValidationConfig{
		Enabled:  true,
		SpecPath: "docs/openapi.yaml",
	})

	// Missing the required prompt field.
	rr := ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "validation_error")

	rr = ts.request(t, http.MethodPost, "/v1/route", map[string]interface{}{"prompt": "hello"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Undocumented routes pass through outside strict mode.
	rr = ts.request(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
