package scoring

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/types"
)

const (
	responseTimeWindow = 100
	costSampleWindow   = 50
	successRateDecay   = 0.9

	defaultSuccessRate = 0.8
	defaultAvgLatency  = 2.0
)

// HealthOracle supplies component health lookups. Keys follow the registry
// convention "provider:NAME" and "runtime:NAME".
type HealthOracle interface {
	HealthStatus(key string) (*types.HealthStatus, bool)
}

// performanceHistory tracks observed behavior for one provider:runtime pair.
type performanceHistory struct {
	responseTimes []float64
	successRate   float64
	totalCalls    int
}

// Scorer computes confidence scores for routing candidates and accumulates
// per-component performance history. Safe for concurrent use.
type Scorer struct {
	health HealthOracle
	logger *logrus.Logger

	mu   sync.Mutex
	perf map[string]*performanceHistory
	cost map[string][]float64
}

// NewScorer returns a scorer. health may be nil when no monitor is wired in;
// the health factor then falls back to an optimistic default.
func NewScorer(health HealthOracle, logger *logrus.Logger) *Scorer {
	return &Scorer{
		health: health,
		logger: logger,
		perf:   make(map[string]*performanceHistory),
		cost:   make(map[string][]float64),
	}
}

// ScoreRoutingDecision scores a (provider, runtime, model) candidate for the
// request under the given policy. It never fails: missing specs or absent
// collaborators degrade individual factors to neutral defaults with a
// reasoning note in the metadata.
func (s *Scorer) ScoreRoutingDecision(req *types.RoutingRequest, provider, runtime, modelID string, pol *policy.RoutingPolicy, providerSpec *types.ProviderSpec, runtimeSpec *types.RuntimeSpec) (float64, *ConfidenceMetadata) {
	start := time.Now()
	md := &ConfidenceMetadata{}

	factors := NewConfidenceFactors()
	factors.ApplyPolicyWeights(pol)

	factors.PolicyAlignment = s.scorePolicyAlignment(req, provider, runtime, pol, md)
	factors.HealthStatus = s.scoreHealthStatus(provider, runtime, md)
	factors.CapabilityMatch = s.scoreCapabilityMatch(req, providerSpec, runtimeSpec, md)
	factors.PerformanceHistory = s.scorePerformanceHistory(provider, runtime, md)
	factors.Availability = s.scoreAvailability(provider, runtime)
	factors.CostEfficiency = s.scoreCostEfficiency(provider, modelID)
	factors.PrivacyCompliance = s.scorePrivacyCompliance(req, provider, runtime, pol, md)
	factors.UserPreference = s.scoreUserPreference(req, provider, runtime, modelID)

	md.Factors = factors
	md.ScoringDuration = time.Since(start)
	score := factors.WeightedTotal()

	s.logger.WithFields(logrus.Fields{
		"provider": provider,
		"runtime":  runtime,
		"model":    modelID,
		"score":    score,
	}).Debug("Routing decision scored")

	return score, md
}

func (s *Scorer) scorePolicyAlignment(req *types.RoutingRequest, provider, runtime string, pol *policy.RoutingPolicy, md *ConfidenceMetadata) float64 {
	if pol == nil {
		md.reason("No routing policy supplied; policy alignment not scored")
		return 0
	}

	score := 0.0
	if want, ok := pol.TaskProviderMap[req.TaskType]; ok {
		if want == provider {
			score += 0.4
			md.reason("Provider %s matches policy preference for %s tasks", provider, req.TaskType)
		} else {
			score += 0.1
		}
	}
	if want, ok := pol.TaskRuntimeMap[req.TaskType]; ok {
		if want == runtime {
			score += 0.4
			md.reason("Runtime %s matches policy preference for %s tasks", runtime, req.TaskType)
		} else {
			score += 0.1
		}
	}
	if want, ok := pol.PerformanceProviderMap[req.PerformanceReq]; ok && want == provider {
		score += 0.1
	}
	if want, ok := pol.PerformanceRuntimeMap[req.PerformanceReq]; ok && want == runtime {
		score += 0.1
	}
	return clamp01(score)
}

func (s *Scorer) scoreHealthStatus(provider, runtime string, md *ConfidenceMetadata) float64 {
	if s.health == nil {
		md.reason("No health monitor wired in; assuming optimistic health")
		return 0.8
	}

	providerStatus := s.lookupHealth(types.HealthKeyProvider(provider))
	runtimeStatus := s.lookupHealth(types.HealthKeyRuntime(runtime))

	score := healthContribution(providerStatus) + healthContribution(runtimeStatus)
	if score > 1.0 {
		score = 1.0
	}

	switch providerStatus {
	case types.HealthUnhealthy:
		md.warn("Provider %s is unhealthy", provider)
	case types.HealthDegraded:
		md.warn("Provider %s is degraded", provider)
	}
	switch runtimeStatus {
	case types.HealthUnhealthy:
		md.warn("Runtime %s is unhealthy", runtime)
	case types.HealthDegraded:
		md.warn("Runtime %s is degraded", runtime)
	}

	return score
}

func (s *Scorer) lookupHealth(key string) string {
	status, ok := s.health.HealthStatus(key)
	if !ok || status == nil {
		return types.HealthUnknown
	}
	return status.Status
}

// Unknown scores above degraded: absence of monitoring data is not evidence
// of a problem.
func healthContribution(status string) float64 {
	switch status {
	case types.HealthHealthy:
		return 0.5
	case types.HealthDegraded:
		return 0.3
	case types.HealthUnhealthy:
		return 0.1
	default:
		return 0.4
	}
}

func (s *Scorer) scoreCapabilityMatch(req *types.RoutingRequest, providerSpec *types.ProviderSpec, runtimeSpec *types.RuntimeSpec, md *ConfidenceMetadata) float64 {
	score := 0.5

	if providerSpec == nil {
		md.reason("No provider spec available; capability match left at base score")
	} else {
		caps := providerSpec.Capabilities
		score += requirementAdjustment(req.RequiresStreaming, caps.Has(types.CapabilityStreaming), types.CapabilityStreaming, md)
		score += requirementAdjustment(req.RequiresFunctionCalling, caps.Has(types.CapabilityFunctionCalling), types.CapabilityFunctionCalling, md)
		score += requirementAdjustment(req.RequiresVision, caps.Has(types.CapabilityVision), types.CapabilityVision, md)
	}

	if runtimeSpec == nil {
		md.reason("No runtime spec available; runtime streaming check skipped")
	} else if req.RequiresStreaming && runtimeSpec.SupportsStreaming {
		score += 0.1
	}

	return clamp01(score)
}

func requirementAdjustment(required, present bool, c types.Capability, md *ConfidenceMetadata) float64 {
	if !required {
		return 0
	}
	if present {
		return 0.15
	}
	md.warn("Required capability %s not supported by provider", c)
	return -0.2
}

func (s *Scorer) scorePerformanceHistory(provider, runtime string, md *ConfidenceMetadata) float64 {
	successRate, avgLatency, samples := s.performanceSnapshot(provider, runtime)
	if samples == 0 {
		md.reason("No performance history for %s:%s; using defaults", provider, runtime)
	} else {
		md.reason("Success rate %.2f, average latency %.2fs over %d samples", successRate, avgLatency, samples)
	}

	score := successRate * 0.6
	switch {
	case avgLatency < 1.0:
		score += 0.4
	case avgLatency < 3.0:
		score += 0.3
	case avgLatency < 5.0:
		score += 0.2
	default:
		score += 0.1
	}
	return clamp01(score)
}

func (s *Scorer) performanceSnapshot(provider, runtime string) (successRate, avgLatency float64, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.perf[componentKey(provider, runtime)]
	if !ok || len(h.responseTimes) == 0 {
		return defaultSuccessRate, defaultAvgLatency, 0
	}

	var total float64
	for _, rt := range h.responseTimes {
		total += rt
	}
	return h.successRate, total / float64(len(h.responseTimes)), len(h.responseTimes)
}

func (s *Scorer) scoreAvailability(provider, runtime string) float64 {
	var score float64
	switch provider {
	case "local", "huggingface":
		score = 0.9
	case "openai", "gemini", "deepseek":
		score = 0.8
	default:
		score = 0.7
	}
	if runtime == "core_helpers" {
		score += 0.1
		if score > 1.0 {
			score = 1.0
		}
	}
	return score
}

func (s *Scorer) scoreCostEfficiency(provider, modelID string) float64 {
	switch provider {
	case "local", "huggingface", "core_helpers":
		return 1.0
	case "deepseek":
		return 0.9
	case "gemini":
		return 0.7
	case "openai":
		if strings.Contains(modelID, "gpt-4") {
			return 0.4
		}
		return 0.6
	default:
		return 0.5
	}
}

func (s *Scorer) scorePrivacyCompliance(req *types.RoutingRequest, provider, runtime string, pol *policy.RoutingPolicy, md *ConfidenceMetadata) float64 {
	if pol == nil {
		md.warn("No routing policy supplied; privacy compliance unverified")
		return 0
	}

	providerAllowed := containsString(pol.PrivacyProviderMap[req.PrivacyLevel], provider)
	runtimeAllowed := containsString(pol.PrivacyRuntimeMap[req.PrivacyLevel], runtime)

	switch {
	case providerAllowed && runtimeAllowed:
		return 1.0
	case providerAllowed:
		md.warn("Runtime %s is not allowed at privacy level %s", runtime, req.PrivacyLevel)
		return 0.7
	case runtimeAllowed:
		md.warn("Provider %s is not allowed at privacy level %s", provider, req.PrivacyLevel)
		return 0.7
	default:
		md.warn("Neither provider %s nor runtime %s is allowed at privacy level %s", provider, runtime, req.PrivacyLevel)
		return 0.0
	}
}

func (s *Scorer) scoreUserPreference(req *types.RoutingRequest, provider, runtime, modelID string) float64 {
	score := 0.0
	matched := false
	if req.PreferredProvider != "" && req.PreferredProvider == provider {
		score += 0.4
		matched = true
	}
	if req.PreferredRuntime != "" && req.PreferredRuntime == runtime {
		score += 0.3
		matched = true
	}
	if req.PreferredModel != "" && req.PreferredModel == modelID {
		score += 0.3
		matched = true
	}
	if !matched {
		return 0.5
	}
	return clamp01(score)
}

// RecordPerformance feeds one observed invocation into the history for the
// provider:runtime pair. Response times are ring-buffered to the last 100
// samples; the success rate is an EWMA weighted toward accumulated history.
func (s *Scorer) RecordPerformance(provider, runtime string, responseTime float64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := componentKey(provider, runtime)
	h, ok := s.perf[key]
	if !ok {
		h = &performanceHistory{successRate: 1.0}
		s.perf[key] = h
	}

	h.responseTimes = append(h.responseTimes, responseTime)
	if len(h.responseTimes) > responseTimeWindow {
		h.responseTimes = h.responseTimes[len(h.responseTimes)-responseTimeWindow:]
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	h.successRate = h.successRate*successRateDecay + outcome*(1-successRateDecay)
	h.totalCalls++
}

// RecordCost appends to the per-(provider, model) cost history, bounded to
// the last 50 samples. Samples are informational only; cost-efficiency
// scoring reads the static table.
func (s *Scorer) RecordCost(provider, modelID string, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := provider + ":" + modelID
	samples := append(s.cost[key], cost)
	if len(samples) > costSampleWindow {
		samples = samples[len(samples)-costSampleWindow:]
	}
	s.cost[key] = samples
}

// ComponentStats summarizes observed behavior for one provider:runtime pair.
type ComponentStats struct {
	AvgResponseTime float64 `json:"avg_response_time"`
	MinResponseTime float64 `json:"min_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
	SuccessRate     float64 `json:"success_rate"`
	TotalCalls      int     `json:"total_calls"`
	Samples         int     `json:"samples"`
}

// PerformanceStats snapshots the recorded history for every component pair.
func (s *Scorer) PerformanceStats() map[string]ComponentStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]ComponentStats, len(s.perf))
	for key, h := range s.perf {
		entry := ComponentStats{
			SuccessRate: h.successRate,
			TotalCalls:  h.totalCalls,
			Samples:     len(h.responseTimes),
		}
		if len(h.responseTimes) > 0 {
			minRT, maxRT, total := h.responseTimes[0], h.responseTimes[0], 0.0
			for _, rt := range h.responseTimes {
				if rt < minRT {
					minRT = rt
				}
				if rt > maxRT {
					maxRT = rt
				}
				total += rt
			}
			entry.MinResponseTime = minRT
			entry.MaxResponseTime = maxRT
			entry.AvgResponseTime = total / float64(len(h.responseTimes))
		}
		stats[key] = entry
	}
	return stats
}

func componentKey(provider, runtime string) string {
	return provider + ":" + runtime
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
