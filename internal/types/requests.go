package types

import (
	"time"
)

// RoutingRequest carries everything the engine needs to choose a provider,
// runtime, and model for one LLM invocation.
type RoutingRequest struct {
	ID             string                 `json:"id,omitempty"`
	Prompt         string                 `json:"prompt"`
	TaskType       TaskType               `json:"task_type"`
	PrivacyLevel   PrivacyLevel           `json:"privacy_level"`
	PerformanceReq PerformanceRequirement `json:"performance_req"`

	// User preferences
	PreferredProvider string `json:"preferred_provider,omitempty"`
	PreferredModel    string `json:"preferred_model,omitempty"`
	PreferredRuntime  string `json:"preferred_runtime,omitempty"`

	// Context information
	UserID        string `json:"user_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`

	// Hard capability requirements
	RequiresStreaming       bool `json:"requires_streaming"`
	RequiresFunctionCalling bool `json:"requires_function_calling"`
	RequiresVision          bool `json:"requires_vision"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`

	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// ApplyDefaults fills the enum fields the wire format allows to be omitted.
func (r *RoutingRequest) ApplyDefaults() {
	if r.TaskType == "" {
		r.TaskType = TaskChat
	}
	if r.PrivacyLevel == "" {
		r.PrivacyLevel = PrivacyPublic
	}
	if r.PerformanceReq == "" {
		r.PerformanceReq = PerformanceInteractive
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
}

// RequiredCapabilities derives the hard capability set from the request's
// explicit flags.
func (r *RoutingRequest) RequiredCapabilities() CapabilitySet {
	s := NewCapabilitySet()
	if r.RequiresStreaming {
		s.Add(CapabilityStreaming)
	}
	if r.RequiresFunctionCalling {
		s.Add(CapabilityFunctionCalling)
	}
	if r.RequiresVision {
		s.Add(CapabilityVision)
	}
	return s
}
