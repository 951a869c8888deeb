package engine

import (
	"strings"

	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// estimateCost returns rough USD per 1K tokens for a provider/model pair, nil
// when the provider has no pricing entry.
func estimateCost(provider, modelID string) *float64 {
	switch provider {
	case "local", "huggingface", "core_helpers":
		return floatPtr(0.0)
	case "openai":
		if strings.Contains(modelID, "gpt-4") {
			return floatPtr(0.03)
		}
		return floatPtr(0.002)
	case "gemini":
		return floatPtr(0.001)
	case "deepseek":
		return floatPtr(0.0002)
	default:
		return nil
	}
}

// estimateLatency returns expected seconds per request. Remote API providers
// dominate their runtime figure; local execution is keyed off the runtime.
func estimateLatency(provider, runtime string) *float64 {
	switch provider {
	case "openai", "gemini", "deepseek":
		return floatPtr(1.5)
	}
	switch runtime {
	case "vllm":
		return floatPtr(0.5)
	case "transformers":
		return floatPtr(2.0)
	case "llama.cpp":
		return floatPtr(1.0)
	case "core_helpers":
		return floatPtr(0.3)
	default:
		return nil
	}
}

// selectModel picks the default model for a provider, empty when the provider
// is not registered.
func (e *Engine) selectModel(provider string, req *types.RoutingRequest) string {
	if _, ok := e.registry.ProviderSpec(provider); !ok {
		return ""
	}

	switch provider {
	case "openai":
		if req.RequiresVision {
			return "gpt-4o"
		}
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-1.5-flash"
	case "deepseek":
		return "deepseek-chat"
	case "local":
		return "llama3.2:latest"
	case "huggingface":
		return "microsoft/DialoGPT-medium"
	default:
		return "default-model"
	}
}

// buildFallbackChain orders the providers to try after the selected one:
// policy fallbacks, then the local pair, then degraded mode, deduplicated.
// Isolated providers are dropped so the chain only advertises usable targets.
func (e *Engine) buildFallbackChain(pol *policy.RoutingPolicy) []string {
	var chain []string
	if pol != nil {
		chain = append(chain, pol.FallbackProviders...)
	}
	chain = append(chain, "local", "huggingface")
	if e.config.EnableDegradedMode {
		chain = append(chain, "core_helpers")
	}

	seen := make(map[string]bool, len(chain))
	out := make([]string, 0, len(chain))
	for _, name := range chain {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if e.isolation != nil {
		out = e.isolation.AvailableProviders(out)
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}
