package engine

import (
	"time"

	"github.com/tributary-ai/routing-engine/internal/scoring"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// RouteDecision is the auditable record of one routing choice: the selected
// (provider, runtime, model) triple, the selection confidence and reason from
// the routing precedence, and the multi-factor confidence score attached
// afterwards. EstimatedCost is USD per 1K tokens; EstimatedLatency is seconds.
// Both are nil when no estimate exists for the component.
type RouteDecision struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id,omitempty"`

	Provider string `json:"provider"`
	Runtime  string `json:"runtime"`
	Model    string `json:"model_id"`

	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`

	FallbackChain []string `json:"fallback_chain"`

	EstimatedCost    *float64 `json:"estimated_cost,omitempty"`
	EstimatedLatency *float64 `json:"estimated_latency,omitempty"`

	PrivacyCompliant bool     `json:"privacy_compliant"`
	Capabilities     []string `json:"capabilities"`

	// Set only on capability-degraded routes.
	DegradedCapabilities []string `json:"degraded_capabilities,omitempty"`

	ConfidenceScore    float64                     `json:"confidence_score"`
	ConfidenceMetadata *scoring.ConfidenceMetadata `json:"confidence_metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// RoutingStats counts routing outcomes by precedence bucket. Explicit
// preference and policy selection count as successful; system default and
// local fallback as fallback; degraded mode separately.
type RoutingStats struct {
	TotalRequests    int64 `json:"total_requests"`
	SuccessfulRoutes int64 `json:"successful_routes"`
	FallbackRoutes   int64 `json:"fallback_routes"`
	DegradedRoutes   int64 `json:"degraded_routes"`
	FailedRoutes     int64 `json:"failed_routes"`
}

// StatsReport is the stats endpoint payload: the raw counters plus the active
// policy and its scoring weights.
type StatsReport struct {
	RoutingStats

	ActivePolicy  string             `json:"active_policy"`
	PolicyWeights map[string]float64 `json:"policy_weights"`
}

// PolicyInfo summarizes the active routing policy for introspection.
type PolicyInfo struct {
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Weights           map[string]float64 `json:"weights"`
	FallbackProviders []string           `json:"fallback_providers"`
	FallbackRuntimes  []string           `json:"fallback_runtimes"`
}

// HealthSummary counts components by health bucket.
type HealthSummary struct {
	TotalComponents     int `json:"total_components"`
	HealthyComponents   int `json:"healthy_components"`
	UnhealthyComponents int `json:"unhealthy_components"`
}

// HealthReport partitions the registry's health map for the health endpoint.
// Keys keep the registry's "provider:NAME" / "runtime:NAME" form. Components
// never probed report unknown and count as healthy.
type HealthReport struct {
	Summary             HealthSummary                  `json:"summary"`
	HealthyProviders    []string                       `json:"healthy_providers"`
	HealthyRuntimes     []string                       `json:"healthy_runtimes"`
	UnhealthyComponents map[string]*types.HealthStatus `json:"unhealthy_components"`
	IsolatedProviders   []string                       `json:"isolated_providers"`
}

// Outcome reports how an invocation that followed a routing decision actually
// went. ResponseTime is seconds.
type Outcome struct {
	Provider     string   `json:"provider"`
	Runtime      string   `json:"runtime"`
	Model        string   `json:"model,omitempty"`
	Success      bool     `json:"success"`
	ResponseTime float64  `json:"response_time"`
	Cost         *float64 `json:"cost,omitempty"`
	FailureType  string   `json:"failure_type,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	RequestType  string   `json:"request_type,omitempty"`
}
