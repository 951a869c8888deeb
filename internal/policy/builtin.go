package policy

import "github.com/tributary-ai/routing-engine/internal/types"

// BuiltinNames lists the policies every manager carries, in registration
// order. "default" is an alias for "balanced".
var BuiltinNames = []string{"privacy_first", "performance_first", "cost_optimized", "balanced", "default"}

// IsBuiltin reports whether name refers to a builtin policy. Builtins cannot
// be deleted.
func IsBuiltin(name string) bool {
	for _, builtin := range BuiltinNames {
		if name == builtin {
			return true
		}
	}
	return false
}

func privacyFirstPolicy() *RoutingPolicy {
	return &RoutingPolicy{
		Name:        "privacy_first",
		Description: "Prioritizes privacy and local execution over performance",

		TaskProviderMap: map[types.TaskType]string{
			types.TaskChat:          "local",
			types.TaskCode:          "local",
			types.TaskReasoning:     "local",
			types.TaskEmbedding:     "huggingface",
			types.TaskSummarization: "local",
			types.TaskTranslation:   "local",
			types.TaskCreative:      "local",
			types.TaskAnalysis:      "local",
		},

		TaskRuntimeMap: map[types.TaskType]string{
			types.TaskChat:          "llama.cpp",
			types.TaskCode:          "llama.cpp",
			types.TaskReasoning:     "llama.cpp",
			types.TaskEmbedding:     "transformers",
			types.TaskSummarization: "llama.cpp",
			types.TaskTranslation:   "llama.cpp",
			types.TaskCreative:      "llama.cpp",
			types.TaskAnalysis:      "llama.cpp",
		},

		PrivacyProviderMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"local", "huggingface"},
			types.PrivacyInternal:     {"local", "huggingface"},
			types.PrivacyConfidential: {"local"},
			types.PrivacyRestricted:   {"local"},
		},

		PrivacyRuntimeMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"llama.cpp", "transformers", "core_helpers"},
			types.PrivacyInternal:     {"llama.cpp", "transformers", "core_helpers"},
			types.PrivacyConfidential: {"llama.cpp", "core_helpers"},
			types.PrivacyRestricted:   {"core_helpers"},
		},

		PerformanceProviderMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "local",
			types.PerformanceBatch:       "local",
			types.PerformanceBackground:  "local",
		},

		PerformanceRuntimeMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "llama.cpp",
			types.PerformanceBatch:       "transformers",
			types.PerformanceBackground:  "llama.cpp",
		},

		FallbackProviders: []string{"local", "huggingface"},
		FallbackRuntimes:  []string{"llama.cpp", "core_helpers"},

		PrivacyWeight:      0.6,
		PerformanceWeight:  0.2,
		CostWeight:         0.1,
		AvailabilityWeight: 0.1,
	}
}

func performanceFirstPolicy() *RoutingPolicy {
	return &RoutingPolicy{
		Name:        "performance_first",
		Description: "Prioritizes performance and speed over privacy and cost",

		TaskProviderMap: map[types.TaskType]string{
			types.TaskChat:          "openai",
			types.TaskCode:          "deepseek",
			types.TaskReasoning:     "gemini",
			types.TaskEmbedding:     "openai",
			types.TaskSummarization: "openai",
			types.TaskTranslation:   "gemini",
			types.TaskCreative:      "openai",
			types.TaskAnalysis:      "gemini",
		},

		TaskRuntimeMap: map[types.TaskType]string{
			types.TaskChat:          "vllm",
			types.TaskCode:          "vllm",
			types.TaskReasoning:     "vllm",
			types.TaskEmbedding:     "vllm",
			types.TaskSummarization: "vllm",
			types.TaskTranslation:   "vllm",
			types.TaskCreative:      "vllm",
			types.TaskAnalysis:      "vllm",
		},

		PrivacyProviderMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"openai", "gemini", "deepseek", "huggingface", "local"},
			types.PrivacyInternal:     {"huggingface", "local"},
			types.PrivacyConfidential: {"local"},
			types.PrivacyRestricted:   {"local"},
		},

		PrivacyRuntimeMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"vllm", "transformers", "llama.cpp", "core_helpers"},
			types.PrivacyInternal:     {"vllm", "transformers", "llama.cpp", "core_helpers"},
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
			types.PerformanceBatch:       "vllm",
			types.PerformanceBackground:  "transformers",
		},

		FallbackProviders: []string{"local", "huggingface"},
		FallbackRuntimes:  []string{"vllm", "transformers", "llama.cpp"},

		PrivacyWeight:      0.1,
		PerformanceWeight:  0.6,
		CostWeight:         0.2,
		AvailabilityWeight: 0.1,
	}
}

func costOptimizedPolicy() *RoutingPolicy {
	return &RoutingPolicy{
		Name:        "cost_optimized",
		Description: "Prioritizes cost efficiency while maintaining reasonable performance",

		TaskProviderMap: map[types.TaskType]string{
			types.TaskChat:          "local",
			types.TaskCode:          "deepseek",
			types.TaskReasoning:     "local",
			types.TaskEmbedding:     "huggingface",
			types.TaskSummarization: "local",
			types.TaskTranslation:   "local",
			types.TaskCreative:      "deepseek",
			types.TaskAnalysis:      "local",
		},

		TaskRuntimeMap: map[types.TaskType]string{
			types.TaskChat:          "llama.cpp",
			types.TaskCode:          "transformers",
			types.TaskReasoning:     "transformers",
			types.TaskEmbedding:     "transformers",
			types.TaskSummarization: "llama.cpp",
			types.TaskTranslation:   "transformers",
			types.TaskCreative:      "transformers",
			types.TaskAnalysis:      "transformers",
		},

		PrivacyProviderMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"local", "deepseek", "huggingface", "gemini", "openai"},
			types.PrivacyInternal:     {"local", "huggingface"},
			types.PrivacyConfidential: {"local"},
			types.PrivacyRestricted:   {"local"},
		},

		PrivacyRuntimeMap: map[types.PrivacyLevel][]string{
			types.PrivacyPublic:       {"llama.cpp", "transformers", "vllm", "core_helpers"},
			types.PrivacyInternal:     {"llama.cpp", "transformers", "core_helpers"},
			types.PrivacyConfidential: {"llama.cpp", "core_helpers"},
			types.PrivacyRestricted:   {"core_helpers"},
		},

		PerformanceProviderMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "deepseek",
			types.PerformanceBatch:       "local",
			types.PerformanceBackground:  "local",
		},

		PerformanceRuntimeMap: map[types.PerformanceRequirement]string{
			types.PerformanceInteractive: "transformers",
			types.PerformanceBatch:       "transformers",
			types.PerformanceBackground:  "llama.cpp",
		},

		FallbackProviders: []string{"local", "huggingface"},
		FallbackRuntimes:  []string{"llama.cpp", "transformers"},

		PrivacyWeight:      0.2,
		PerformanceWeight:  0.2,
		CostWeight:         0.5,
		AvailabilityWeight: 0.1,
	}
}

func balancedPolicy() *RoutingPolicy {
	return &RoutingPolicy{
		Name:        "balanced",
		Description: "Balanced approach considering all factors equally",

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

		PrivacyWeight:      0.25,
		PerformanceWeight:  0.25,
		CostWeight:         0.25,
		AvailabilityWeight: 0.25,
	}
}
