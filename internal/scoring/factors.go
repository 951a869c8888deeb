package scoring

import (
	"fmt"
	"time"

	"github.com/tributary-ai/routing-engine/internal/policy"
)

// ConfidenceFactors holds the eight factor scores and the weights used to
// combine them. Factors are clamped to [0,1]; weights are deliberately not
// normalized, so the combined score is comparable between candidates but is
// not a probability.
type ConfidenceFactors struct {
	PolicyAlignment    float64 `json:"policy_alignment"`
	HealthStatus       float64 `json:"health_status"`
	CapabilityMatch    float64 `json:"capability_match"`
	PerformanceHistory float64 `json:"performance_history"`
	Availability       float64 `json:"availability"`
	CostEfficiency     float64 `json:"cost_efficiency"`
	PrivacyCompliance  float64 `json:"privacy_compliance"`
	UserPreference     float64 `json:"user_preference"`

	PolicyWeight       float64 `json:"policy_weight"`
	HealthWeight       float64 `json:"health_weight"`
	CapabilityWeight   float64 `json:"capability_weight"`
	PerformanceWeight  float64 `json:"performance_weight"`
	AvailabilityWeight float64 `json:"availability_weight"`
	CostWeight         float64 `json:"cost_weight"`
	PrivacyWeight      float64 `json:"privacy_weight"`
	PreferenceWeight   float64 `json:"preference_weight"`
}

// NewConfidenceFactors returns zeroed factors carrying the default weights.
func NewConfidenceFactors() ConfidenceFactors {
	return ConfidenceFactors{
		PolicyWeight:       0.25,
		HealthWeight:       0.15,
		CapabilityWeight:   0.15,
		PerformanceWeight:  0.15,
		AvailabilityWeight: 0.10,
		CostWeight:         0.10,
		PrivacyWeight:      0.05,
		PreferenceWeight:   0.05,
	}
}

// ApplyPolicyWeights overrides the four policy-sourced weights. The policy's
// privacy weight drives the policy-alignment factor and its availability
// weight drives the health factor; capability, availability, privacy, and
// preference weights always keep their defaults.
func (f *ConfidenceFactors) ApplyPolicyWeights(p *policy.RoutingPolicy) {
	if p == nil {
		return
	}
	f.PolicyWeight = p.PrivacyWeight
	f.HealthWeight = p.AvailabilityWeight
	f.PerformanceWeight = p.PerformanceWeight
	f.CostWeight = p.CostWeight
}

// WeightedTotal combines the factors with their weights. The result is
// non-negative but has no fixed upper bound since weights are unnormalized.
func (f ConfidenceFactors) WeightedTotal() float64 {
	return clamp01(f.PolicyAlignment)*f.PolicyWeight +
		clamp01(f.HealthStatus)*f.HealthWeight +
		clamp01(f.CapabilityMatch)*f.CapabilityWeight +
		clamp01(f.PerformanceHistory)*f.PerformanceWeight +
		clamp01(f.Availability)*f.AvailabilityWeight +
		clamp01(f.CostEfficiency)*f.CostWeight +
		clamp01(f.PrivacyCompliance)*f.PrivacyWeight +
		clamp01(f.UserPreference)*f.PreferenceWeight
}

// ConfidenceMetadata explains how a score came to be: the factor breakdown,
// human-readable reasoning, and any warnings raised along the way.
type ConfidenceMetadata struct {
	Factors                ConfidenceFactors `json:"factors"`
	Reasoning              []string          `json:"reasoning"`
	Warnings               []string          `json:"warnings,omitempty"`
	AlternativesConsidered int               `json:"alternatives_considered"`
	ScoringDuration        time.Duration     `json:"scoring_duration"`
}

func (m *ConfidenceMetadata) reason(format string, args ...interface{}) {
	m.Reasoning = append(m.Reasoning, fmt.Sprintf(format, args...))
}

func (m *ConfidenceMetadata) warn(format string, args ...interface{}) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
