package integration_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/config"
	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/profiles"
	"github.com/tributary-ai/routing-engine/internal/registry"
	"github.com/tributary-ai/routing-engine/internal/routing"
	"github.com/tributary-ai/routing-engine/internal/scoring"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// newStack wires the full routing stack the way cmd does, minus the HTTP
// server and the health monitor.
func newStack(tb testing.TB) (*engine.Engine, *registry.Registry, *isolation.Tracker) {
	tb.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := registry.New(logger)
	registry.SeedDefaults(reg)

	tracker := isolation.NewTracker(nil, reg, logger)
	tb.Cleanup(tracker.Stop)

	store, err := profiles.NewStore("", logger)
	if err != nil {
		tb.Fatalf("Failed to create profile store: %v", err)
	}
	profMgr := profiles.NewManager(store, reg, logger)

	capRouter := routing.NewCapabilityRouter(reg, tracker, profMgr, logger)
	scorer := scoring.NewScorer(reg, logger)
	policies := policy.NewManager("", logger)

	eng := engine.New(reg, capRouter, scorer, policies, tracker, engine.Config{EnableDegradedMode: true}, logger)
	return eng, reg, tracker
}

func TestRoutingEndToEnd(t *testing.T) {
	eng, reg, tracker := newStack(t)
	ctx := context.Background()

	// Default chat request lands on the policy stage's task mapping.
	decision, err := eng.Route(ctx, &types.RoutingRequest{ID: "req-1", Prompt: "Hello, world!"})
	if err != nil {
		t.Fatalf("Routing failed: %v", err)
	}

	if decision.Provider != "openai" {
		t.Fatalf("Expected routing to 'openai', got %s", decision.Provider)
	}

	if decision.Runtime != "vllm" {
		t.Fatalf("Expected runtime 'vllm', got %s", decision.Runtime)
	}

	if !decision.PrivacyCompliant {
		t.Fatal("Expected default request to be privacy compliant")
	}

	// Explicit provider preference wins over the policy mapping.
	decision, err = eng.Route(ctx, &types.RoutingRequest{
		ID:                "req-2",
		Prompt:            "Hello again",
		PreferredProvider: "deepseek",
	})
	if err != nil {
		t.Fatalf("Routing with preference failed: %v", err)
	}

	if decision.Provider != "deepseek" {
		t.Fatalf("Expected preferred provider 'deepseek', got %s", decision.Provider)
	}

	// Restricted requests stay on the local provider.
	decision, err = eng.Route(ctx, &types.RoutingRequest{
		ID:           "req-3",
		Prompt:       "Summarize this medical record",
		PrivacyLevel: types.PrivacyRestricted,
	})
	if err != nil {
		t.Fatalf("Routing restricted request failed: %v", err)
	}

	if decision.Provider != "local" {
		t.Fatalf("Expected restricted request on 'local', got %s", decision.Provider)
	}

	// Repeated failures isolate the provider and routing moves off it.
	for i := 0; i < 5; i++ {
		eng.RecordOutcome(engine.Outcome{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Success:     false,
			FailureType: "provider_unavailable",
		})
	}

	if !tracker.IsProviderIsolated("openai") {
		t.Fatal("Expected openai isolated after repeated failures")
	}

	decision, err = eng.Route(ctx, &types.RoutingRequest{ID: "req-4", Prompt: "Hello once more"})
	if err != nil {
		t.Fatalf("Routing after isolation failed: %v", err)
	}

	if decision.Provider == "openai" {
		t.Fatal("Expected routing to avoid the isolated provider")
	}

	// Stats saw every live route; dry runs stay invisible.
	report := eng.DryRun(&types.RoutingRequest{Prompt: "what if"})
	if report.FinalRecommendation == nil {
		t.Fatal("Expected a dry-run recommendation")
	}

	stats := eng.Stats()
	if stats.TotalRequests != 4 {
		t.Fatalf("Expected 4 routed requests, got %d", stats.TotalRequests)
	}

	if stats.ActivePolicy != "balanced" {
		t.Fatalf("Expected active policy 'balanced', got %s", stats.ActivePolicy)
	}

	// Health report reflects probe results and isolation state.
	reg.SetHealth(types.HealthKeyProvider("gemini"), &types.HealthStatus{Status: types.HealthUnhealthy})
	health := eng.HealthReport()
	if health.Summary.UnhealthyComponents != 1 {
		t.Fatalf("Expected 1 unhealthy component, got %d", health.Summary.UnhealthyComponents)
	}

	found := false
	for _, name := range health.IsolatedProviders {
		if name == "openai" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected openai in isolated providers, got %v", health.IsolatedProviders)
	}
}

func TestCapabilityRoutingEndToEnd(t *testing.T) {
	eng, _, _ := newStack(t)
	ctx := context.Background()

	required, err := types.ParseCapabilitySet([]string{"vision", "batch_processing"})
	if err != nil {
		t.Fatalf("Failed to parse capabilities: %v", err)
	}

	requirement, err := routing.NewCapabilityRequirement(required, nil, nil)
	if err != nil {
		t.Fatalf("Failed to build requirement: %v", err)
	}

	// No provider advertises both; degradation drops one and still routes.
	capReq := routing.NewRoutingCapabilityRequest(&types.RoutingRequest{ID: "cap-1", Prompt: "batch of images"}, requirement)
	decision, result := eng.RouteWithCapabilities(ctx, capReq)
	if !result.Success {
		t.Fatalf("Expected degraded capability routing to succeed: %s", result.RoutingReason)
	}

	if decision == nil {
		t.Fatal("Expected a decision alongside the capability result")
	}

	if result.DegradedCapabilities.Len() == 0 {
		t.Fatal("Expected at least one degraded capability")
	}

	// With degradation off the same requirement fails and reports options.
	capReq = routing.NewRoutingCapabilityRequest(&types.RoutingRequest{ID: "cap-2", Prompt: "batch of images"}, requirement)
	capReq.AllowCapabilityDegradation = false
	_, result = eng.RouteWithCapabilities(ctx, capReq)
	if result.Success {
		t.Fatal("Expected capability routing to fail without degradation")
	}

	if len(result.AlternativeOptions) == 0 {
		t.Fatal("Expected alternative options on failure")
	}
}

func TestConfigurationLoading(t *testing.T) {
	// Test loading configuration with mock API keys set
	t.Setenv("OPENAI_API_KEY", "test-openai-key")
	t.Setenv("ANTHROPIC_API_KEY", "test-anthropic-key")

	// Test loading configuration with defaults (no file)
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	// Verify defaults
	if cfg.Server.Port != "8080" {
		t.Fatalf("Expected default port '8080', got %s", cfg.Server.Port)
	}

	if cfg.Policies.Active != "balanced" {
		t.Fatalf("Expected default policy 'balanced', got %s", cfg.Policies.Active)
	}

	if cfg.Logging.Level != "info" {
		t.Fatalf("Expected default log level 'info', got %s", cfg.Logging.Level)
	}

	// With both keys set, every default probe family has credentials:
	// openai and anthropic via keys, deepseek/gemini/local via endpoints.
	probed := cfg.ProbedProviders()
	if len(probed) != 5 {
		t.Fatalf("Expected 5 probed providers with API keys, got %v", probed)
	}
}

func BenchmarkRouting(b *testing.B) {
	eng, _, _ := newStack(b)

	req := &types.RoutingRequest{
		ID:     "benchmark-request",
		Prompt: "Hello, world!",
	}

	ctx := context.Background()

	// Benchmark routing
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Route(ctx, req); err != nil {
			b.Fatalf("Routing failed: %v", err)
		}
	}
}
