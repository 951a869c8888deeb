package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/types"
)

// RoutingPolicy encodes task, privacy, and performance preferences plus the
// weights the confidence scorer reads. Every field is an explicit map or
// scalar; there is no reflective attribute probing anywhere in the router.
type RoutingPolicy struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Task type mappings
	TaskProviderMap map[types.TaskType]string `json:"task_provider_map,omitempty" yaml:"task_provider_map,omitempty"`
	TaskRuntimeMap  map[types.TaskType]string `json:"task_runtime_map,omitempty" yaml:"task_runtime_map,omitempty"`

	// Privacy constraints
	PrivacyProviderMap map[types.PrivacyLevel][]string `json:"privacy_provider_map,omitempty" yaml:"privacy_provider_map,omitempty"`
	PrivacyRuntimeMap  map[types.PrivacyLevel][]string `json:"privacy_runtime_map,omitempty" yaml:"privacy_runtime_map,omitempty"`

	// Performance preferences
	PerformanceProviderMap map[types.PerformanceRequirement]string `json:"performance_provider_map,omitempty" yaml:"performance_provider_map,omitempty"`
	PerformanceRuntimeMap  map[types.PerformanceRequirement]string `json:"performance_runtime_map,omitempty" yaml:"performance_runtime_map,omitempty"`

	// Fallback chain
	FallbackProviders []string `json:"fallback_providers,omitempty" yaml:"fallback_providers,omitempty"`
	FallbackRuntimes  []string `json:"fallback_runtimes,omitempty" yaml:"fallback_runtimes,omitempty"`

	// Weights for decision scoring
	PrivacyWeight      float64 `json:"privacy_weight" yaml:"privacy_weight"`
	PerformanceWeight  float64 `json:"performance_weight" yaml:"performance_weight"`
	CostWeight         float64 `json:"cost_weight" yaml:"cost_weight"`
	AvailabilityWeight float64 `json:"availability_weight" yaml:"availability_weight"`
}

// DefaultPolicy returns the policy applied when no named policy has been
// selected. Weights favor privacy, then performance.
func DefaultPolicy() *RoutingPolicy {
	return &RoutingPolicy{
		Name:        "default",
		Description: "Default intelligent routing policy",

		TaskProviderMap: map[types.TaskType]string{
			types.TaskChat:          "openai",
			types.TaskCode:          "deepseek",
			types.TaskReasoning:     "gemini",
			types.TaskEmbedding:     "huggingface",
			types.TaskSummarization: "local",
			types.TaskTranslation:   "gemini",
			types.TaskCreative:      "openai",
			types.TaskAnalysis:      "gemini",
		},

		TaskRuntimeMap: map[types.TaskType]string{
			types.TaskChat:          "vllm",
			types.TaskCode:          "transformers",
			types.TaskReasoning:     "vllm",
			types.TaskEmbedding:     "transformers",
			types.TaskSummarization: "llama.cpp",
			types.TaskTranslation:   "transformers",
			types.TaskCreative:      "vllm",
			types.TaskAnalysis:      "transformers",
		},

		PrivacyProviderMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"openai", "gemini", "deepseek", "huggingface", "local"},
			types.PrivacyInternal:     {"huggingface", "local"},
			types.PrivacyConfidential: {"local"},
			types.PrivacyRestricted:   {"local"},
		},

		PrivacyRuntimeMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"vllm", "transformers", "llama.cpp", "core_helpers"},
			types.PrivacyInternal:     {"transformers", "llama.cpp", "core_helpers"},
			types.PrivacyConfidential: {"llama.cpp", "core_helpers"},
			types.PrivacyRestricted:   {"core_helpers"},
		},

		PerformanceProviderMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "openai",
			types.PerformanceBatch:       "local",
			types.PerformanceBackground:  "local",
		},

		PerformanceRuntimeMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "vllm",
			types.PerformanceBatch:       "transformers",
			types.PerformanceBackground:  "llama.cpp",
		},

		FallbackProviders: []string{"local", "huggingface"},
		FallbackRuntimes:  []string{"llama.cpp", "core_helpers"},

		PrivacyWeight:      0.4,
		PerformanceWeight:  0.3,
		CostWeight:         0.2,
		AvailabilityWeight: 0.1,
	}
}

// normalize drops map entries keyed by unrecognized enum values. YAML decoding
// accepts arbitrary string keys, so policies loaded from disk pass through
// here before registration.
func (p *RoutingPolicy) normalize(logger *logrus.Logger) {
	for task := range p.TaskProviderMap {
		if !validTask(task) {
			logger.WithField("task_type", string(task)).Warn("Unknown task type in policy, dropping entry")
			delete(p.TaskProviderMap, task)
		}
	}
	for task := range p.TaskRuntimeMap {
		if !validTask(task) {
			logger.WithField("task_type", string(task)).Warn("Unknown task type in policy, dropping entry")
			delete(p.TaskRuntimeMap, task)
		}
	}
	for level := range p.PrivacyProviderMap {
		if !validPrivacy(level) {
			logger.WithField("privacy_level", string(level)).Warn("Unknown privacy level in policy, dropping entry")
			delete(p.PrivacyProviderMap, level)
		}
	}
	for level := range p.PrivacyRuntimeMap {
		if !validPrivacy(level) {
			logger.WithField("privacy_level", string(level)).Warn("Unknown privacy level in policy, dropping entry")
			delete(p.PrivacyRuntimeMap, level)
		}
	}
	for req := range p.PerformanceProviderMap {
		if !validPerformance(req) {
			logger.WithField("performance_req", string(req)).Warn("Unknown performance requirement in policy, dropping entry")
			delete(p.PerformanceProviderMap, req)
		}
	}
	for req := range p.PerformanceRuntimeMap {
		if !validPerformance(req) {
			logger.WithField("performance_req", string(req)).Warn("Unknown performance requirement in policy, dropping entry")
			delete(p.PerformanceRuntimeMap, req)
		}
	}
}

func validTask(t types.TaskType) bool {
	for _, known := range types.AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

func validPrivacy(l types.PrivacyLevel) bool {
	for _, known := range types.AllPrivacyLevels {
		if l == known {
			return true
		}
	}
	return false
}

func validPerformance(r types.PerformanceRequirement) bool {
	for _, known := range types.AllPerformanceRequirements {
		if r == known {
			return true
		}
	}
	return false
}
