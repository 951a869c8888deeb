package scoring

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/types"
)

func createTestScorer(oracle HealthOracle) *Scorer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewScorer(oracle, logger)
}

func createTestRequest() *types.RoutingRequest {
	req := &types.RoutingRequest{
		Prompt:   "hello",
		TaskType: types.TaskChat,
	}
	req.ApplyDefaults()
	return req
}

type fakeHealthOracle struct {
	statuses map[string]*types.HealthStatus
}

func (f *fakeHealthOracle) HealthStatus(key string) (*types.HealthStatus, bool) {
	status, ok := f.statuses[key]
	return status, ok
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScorer_UserPreferenceDominance(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()
	req.PreferredProvider = "openai"
	req.PreferredRuntime = "vllm"
	req.PreferredModel = "gpt-4"

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", policy.DefaultPolicy(), nil, nil)

	if !almostEqual(md.Factors.UserPreference, 1.0) {
		t.Errorf("Expected user preference 1.0, got %f", md.Factors.UserPreference)
	}
}

func TestScorer_UserPreferenceDefault(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", policy.DefaultPolicy(), nil, nil)

	if !almostEqual(md.Factors.UserPreference, 0.5) {
		t.Errorf("Expected neutral user preference 0.5, got %f", md.Factors.UserPreference)
	}
}

func TestScorer_UserPreferencePartialMatch(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()
	req.PreferredProvider = "openai"
	req.PreferredModel = "gpt-4"

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-3.5-turbo", policy.DefaultPolicy(), nil, nil)

	// Provider matches (+0.4), model does not
	if !almostEqual(md.Factors.UserPreference, 0.4) {
		t.Errorf("Expected user preference 0.4, got %f", md.Factors.UserPreference)
	}
}

func TestScorer_PerformanceHistoryConvergence(t *testing.T) {
	scorer := createTestScorer(nil)

	for i := 0; i < 10; i++ {
		scorer.RecordPerformance("p", "r", 0.5, true)
	}

	req := createTestRequest()
	_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", policy.DefaultPolicy(), nil, nil)

	// Success component 1.0*0.6 plus latency component 0.4 for avg <1s
	if !almostEqual(md.Factors.PerformanceHistory, 1.0) {
		t.Errorf("Expected performance factor 1.0, got %f", md.Factors.PerformanceHistory)
	}

	stats := scorer.PerformanceStats()
	entry, ok := stats["p:r"]
	if !ok {
		t.Fatal("Expected stats entry for p:r")
	}
	if entry.SuccessRate <= 0.8 {
		t.Errorf("Expected success rate above 0.8 after 10 successes, got %f", entry.SuccessRate)
	}
	if !almostEqual(entry.AvgResponseTime, 0.5) {
		t.Errorf("Expected average response time 0.5, got %f", entry.AvgResponseTime)
	}
}

func TestScorer_PerformanceHistoryDefaults(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()

	_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", policy.DefaultPolicy(), nil, nil)

	// Default success rate 0.8 and default 2.0s latency bucket
	expected := 0.8*0.6 + 0.3
	if !almostEqual(md.Factors.PerformanceHistory, expected) {
		t.Errorf("Expected performance factor %f, got %f", expected, md.Factors.PerformanceHistory)
	}
}

func TestScorer_PerformanceHistoryFailuresLowerScore(t *testing.T) {
	scorer := createTestScorer(nil)

	for i := 0; i < 20; i++ {
		scorer.RecordPerformance("p", "r", 4.0, false)
	}

	stats := scorer.PerformanceStats()
	entry := stats["p:r"]
	if entry.SuccessRate >= 0.5 {
		t.Errorf("Expected success rate below 0.5 after 20 failures, got %f", entry.SuccessRate)
	}

	req := createTestRequest()
	_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", policy.DefaultPolicy(), nil, nil)

	// Latency 4.0s lands in the 0.2 bucket
	expected := entry.SuccessRate*0.6 + 0.2
	if !almostEqual(md.Factors.PerformanceHistory, expected) {
		t.Errorf("Expected performance factor %f, got %f", expected, md.Factors.PerformanceHistory)
	}
}

func TestScorer_RecordPerformanceBoundsHistory(t *testing.T) {
	scorer := createTestScorer(nil)

	for i := 0; i < 150; i++ {
		scorer.RecordPerformance("p", "r", 1.0, true)
	}

	stats := scorer.PerformanceStats()
	entry := stats["p:r"]
	if entry.Samples != responseTimeWindow {
		t.Errorf("Expected %d retained samples, got %d", responseTimeWindow, entry.Samples)
	}
	if entry.TotalCalls != 150 {
		t.Errorf("Expected 150 total calls, got %d", entry.TotalCalls)
	}
}

func TestScorer_RecordCostBoundsHistory(t *testing.T) {
	scorer := createTestScorer(nil)

	for i := 0; i < 60; i++ {
		scorer.RecordCost("openai", "gpt-4", 0.03)
	}

	scorer.mu.Lock()
	samples := len(scorer.cost["openai:gpt-4"])
	scorer.mu.Unlock()

	if samples != costSampleWindow {
		t.Errorf("Expected %d retained cost samples, got %d", costSampleWindow, samples)
	}
}

func TestScorer_PrivacyCompliance(t *testing.T) {
	scorer := createTestScorer(nil)
	pol := policy.DefaultPolicy()

	tests := []struct {
		name     string
		privacy  types.PrivacyLevel
		provider string
		runtime  string
		expected float64
	}{
		{"both allowed", types.PrivacyConfidential, "local", "llama.cpp", 1.0},
		{"provider only", types.PrivacyConfidential, "local", "vllm", 0.7},
		{"runtime only", types.PrivacyConfidential, "openai", "llama.cpp", 0.7},
		{"neither allowed", types.PrivacyConfidential, "openai", "vllm", 0.0},
		{"public allows cloud", types.PrivacyPublic, "openai", "vllm", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createTestRequest()
			req.PrivacyLevel = tt.privacy

			_, md := scorer.ScoreRoutingDecision(req, tt.provider, tt.runtime, "m", pol, nil, nil)

			if !almostEqual(md.Factors.PrivacyCompliance, tt.expected) {
				t.Errorf("Expected privacy compliance %f, got %f", tt.expected, md.Factors.PrivacyCompliance)
			}
		})
	}
}

func TestScorer_PolicyAlignment(t *testing.T) {
	scorer := createTestScorer(nil)
	pol := policy.DefaultPolicy()

	req := createTestRequest()

	// chat prefers openai/vllm, interactive prefers openai/vllm
	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", pol, nil, nil)
	if !almostEqual(md.Factors.PolicyAlignment, 1.0) {
		t.Errorf("Expected full policy alignment, got %f", md.Factors.PolicyAlignment)
	}

	// Mapped but different provider and runtime score 0.1 each
	_, md = scorer.ScoreRoutingDecision(req, "gemini", "transformers", "m", pol, nil, nil)
	if !almostEqual(md.Factors.PolicyAlignment, 0.2) {
		t.Errorf("Expected partial policy alignment 0.2, got %f", md.Factors.PolicyAlignment)
	}

	// No policy at all scores zero
	_, md = scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", nil, nil, nil)
	if !almostEqual(md.Factors.PolicyAlignment, 0.0) {
		t.Errorf("Expected zero alignment without policy, got %f", md.Factors.PolicyAlignment)
	}
}

func TestScorer_HealthStatusWithoutOracle(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "m", policy.DefaultPolicy(), nil, nil)

	if !almostEqual(md.Factors.HealthStatus, 0.8) {
		t.Errorf("Expected optimistic health 0.8 without oracle, got %f", md.Factors.HealthStatus)
	}
}

func TestScorer_HealthStatusContributions(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		runtime  string
		expected float64
	}{
		{"both healthy", types.HealthHealthy, types.HealthHealthy, 1.0},
		{"degraded plus unknown", types.HealthDegraded, "", 0.7},
		{"both unhealthy", types.HealthUnhealthy, types.HealthUnhealthy, 0.2},
		{"healthy plus degraded", types.HealthHealthy, types.HealthDegraded, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := map[string]*types.HealthStatus{}
			if tt.provider != "" {
				statuses[types.HealthKeyProvider("p")] = &types.HealthStatus{Status: tt.provider}
			}
			if tt.runtime != "" {
				statuses[types.HealthKeyRuntime("r")] = &types.HealthStatus{Status: tt.runtime}
			}
			scorer := createTestScorer(&fakeHealthOracle{statuses: statuses})

			req := createTestRequest()
			_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", policy.DefaultPolicy(), nil, nil)

			if !almostEqual(md.Factors.HealthStatus, tt.expected) {
				t.Errorf("Expected health factor %f, got %f", tt.expected, md.Factors.HealthStatus)
			}
		})
	}
}

func TestScorer_CapabilityMatch(t *testing.T) {
	scorer := createTestScorer(nil)
	pol := policy.DefaultPolicy()

	providerSpec := &types.ProviderSpec{
		Name:         "p",
		Capabilities: types.NewCapabilitySet(types.CapabilityStreaming),
	}
	runtimeSpec := &types.RuntimeSpec{Name: "r", SupportsStreaming: true}

	req := createTestRequest()
	req.RequiresStreaming = true

	_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", pol, providerSpec, runtimeSpec)
	if !almostEqual(md.Factors.CapabilityMatch, 0.75) {
		t.Errorf("Expected capability match 0.75, got %f", md.Factors.CapabilityMatch)
	}

	// Missing vision subtracts 0.2
	req.RequiresVision = true
	_, md = scorer.ScoreRoutingDecision(req, "p", "r", "m", pol, providerSpec, runtimeSpec)
	if !almostEqual(md.Factors.CapabilityMatch, 0.55) {
		t.Errorf("Expected capability match 0.55, got %f", md.Factors.CapabilityMatch)
	}
	if len(md.Warnings) == 0 {
		t.Error("Expected a warning for the missing vision capability")
	}

	// Missing specs leave the base score with a reasoning note
	_, md = scorer.ScoreRoutingDecision(req, "p", "r", "m", pol, nil, nil)
	if !almostEqual(md.Factors.CapabilityMatch, 0.5) {
		t.Errorf("Expected base capability match 0.5, got %f", md.Factors.CapabilityMatch)
	}
	if len(md.Reasoning) == 0 {
		t.Error("Expected reasoning notes for missing specs")
	}
}

func TestScorer_CapabilityMatchClamped(t *testing.T) {
	scorer := createTestScorer(nil)

	providerSpec := &types.ProviderSpec{
		Name: "p",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
			types.CapabilityFunctionCalling,
			types.CapabilityVision,
		),
	}
	runtimeSpec := &types.RuntimeSpec{Name: "r", SupportsStreaming: true}

	req := createTestRequest()
	req.RequiresStreaming = true
	req.RequiresFunctionCalling = true
	req.RequiresVision = true

	// Raw 0.5 + 3*0.15 + 0.1 exceeds 1.0 and must clamp
	_, md := scorer.ScoreRoutingDecision(req, "p", "r", "m", policy.DefaultPolicy(), providerSpec, runtimeSpec)
	if !almostEqual(md.Factors.CapabilityMatch, 1.0) {
		t.Errorf("Expected clamped capability match 1.0, got %f", md.Factors.CapabilityMatch)
	}
}

func TestScorer_CostEfficiency(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()
	pol := policy.DefaultPolicy()

	tests := []struct {
		provider string
		model    string
		expected float64
	}{
		{"local", "llama-3", 1.0},
		{"huggingface", "mistral", 1.0},
		{"deepseek", "deepseek-chat", 0.9},
		{"gemini", "gemini-pro", 0.7},
		{"openai", "gpt-4-turbo", 0.4},
		{"openai", "gpt-3.5-turbo", 0.6},
		{"mystery", "m", 0.5},
	}

	for _, tt := range tests {
		_, md := scorer.ScoreRoutingDecision(req, tt.provider, "r", tt.model, pol, nil, nil)
		if !almostEqual(md.Factors.CostEfficiency, tt.expected) {
			t.Errorf("Expected cost efficiency %f for %s/%s, got %f", tt.expected, tt.provider, tt.model, md.Factors.CostEfficiency)
		}
	}
}

func TestScorer_Availability(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()
	pol := policy.DefaultPolicy()

	tests := []struct {
		provider string
		runtime  string
		expected float64
	}{
		{"local", "llama.cpp", 0.9},
		{"huggingface", "core_helpers", 1.0},
		{"openai", "vllm", 0.8},
		{"openai", "core_helpers", 0.9},
		{"mystery", "r", 0.7},
	}

	for _, tt := range tests {
		_, md := scorer.ScoreRoutingDecision(req, tt.provider, tt.runtime, "m", pol, nil, nil)
		if !almostEqual(md.Factors.Availability, tt.expected) {
			t.Errorf("Expected availability %f for %s/%s, got %f", tt.expected, tt.provider, tt.runtime, md.Factors.Availability)
		}
	}
}

func TestScorer_WeightMapping(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()

	pol := &policy.RoutingPolicy{
		Name:               "weights",
		PrivacyWeight:      0.6,
		PerformanceWeight:  0.2,
		CostWeight:         0.1,
		AvailabilityWeight: 0.1,
	}

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "m", pol, nil, nil)

	f := md.Factors
	if !almostEqual(f.PolicyWeight, 0.6) {
		t.Errorf("Expected policy weight from privacy_weight 0.6, got %f", f.PolicyWeight)
	}
	if !almostEqual(f.HealthWeight, 0.1) {
		t.Errorf("Expected health weight from availability_weight 0.1, got %f", f.HealthWeight)
	}
	if !almostEqual(f.PerformanceWeight, 0.2) {
		t.Errorf("Expected performance weight 0.2, got %f", f.PerformanceWeight)
	}
	if !almostEqual(f.CostWeight, 0.1) {
		t.Errorf("Expected cost weight 0.1, got %f", f.CostWeight)
	}

	// The remaining weights keep their defaults
	if !almostEqual(f.CapabilityWeight, 0.15) || !almostEqual(f.AvailabilityWeight, 0.10) ||
		!almostEqual(f.PrivacyWeight, 0.05) || !almostEqual(f.PreferenceWeight, 0.05) {
		t.Errorf("Expected fixed weights 0.15/0.10/0.05/0.05, got %f/%f/%f/%f",
			f.CapabilityWeight, f.AvailabilityWeight, f.PrivacyWeight, f.PreferenceWeight)
	}
}

func TestScorer_ScoreBoundedness(t *testing.T) {
	scorer := createTestScorer(nil)
	pol := policy.DefaultPolicy()

	candidates := []struct {
		provider string
		runtime  string
		model    string
	}{
		{"openai", "vllm", "gpt-4"},
		{"local", "llama.cpp", "llama-3"},
		{"mystery", "unknown", ""},
		{"deepseek", "core_helpers", "deepseek-chat"},
	}

	for _, c := range candidates {
		req := createTestRequest()
		req.PrivacyLevel = types.PrivacyRestricted
		req.RequiresVision = true

		score, md := scorer.ScoreRoutingDecision(req, c.provider, c.runtime, c.model, pol, nil, nil)

		if score < 0 {
			t.Errorf("Expected non-negative score for %s, got %f", c.provider, score)
		}
		factors := []float64{
			md.Factors.PolicyAlignment,
			md.Factors.HealthStatus,
			md.Factors.CapabilityMatch,
			md.Factors.PerformanceHistory,
			md.Factors.Availability,
			md.Factors.CostEfficiency,
			md.Factors.PrivacyCompliance,
			md.Factors.UserPreference,
		}
		for i, f := range factors {
			if f < 0 || f > 1 {
				t.Errorf("Factor %d out of [0,1] for %s: %f", i, c.provider, f)
			}
		}
	}
}

func TestScorer_MetadataPopulated(t *testing.T) {
	scorer := createTestScorer(nil)
	req := createTestRequest()

	_, md := scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", policy.DefaultPolicy(), nil, nil)

	if len(md.Reasoning) == 0 {
		t.Error("Expected reasoning entries in scoring metadata")
	}
	if md.ScoringDuration < 0 {
		t.Errorf("Expected non-negative scoring duration, got %v", md.ScoringDuration)
	}
}

func BenchmarkScorer_ScoreRoutingDecision(b *testing.B) {
	scorer := createTestScorer(nil)
	req := createTestRequest()
	pol := policy.DefaultPolicy()
	providerSpec := &types.ProviderSpec{
		Name:         "openai",
		Capabilities: types.NewCapabilitySet(types.CapabilityStreaming, types.CapabilityFunctionCalling),
	}
	runtimeSpec := &types.RuntimeSpec{Name: "vllm", SupportsStreaming: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scorer.ScoreRoutingDecision(req, "openai", "vllm", "gpt-4", pol, providerSpec, runtimeSpec)
	}
}
