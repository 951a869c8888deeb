package registry

import (
	"github.com/tributary-ai/routing-engine/internal/types"
)

// SeedDefaults registers the built-in provider and runtime catalog. Config
// can replace or extend any entry; registration order is also the system
// default preference order.
func SeedDefaults(r *Registry) {
	r.RegisterProvider(types.ProviderSpec{
		Name: "openai",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
			types.CapabilityEmbeddings,
			types.CapabilityFunctionCalling,
			types.CapabilityVision,
		),
		DefaultRuntime: "vllm",
		Endpoint:       "https://api.openai.com/v1",
	}, []types.ModelInfo{
		{ID: "gpt-4o", Family: "gpt", Tags: []string{"text", "vision"}},
		{ID: "gpt-4o-mini", Family: "gpt", Tags: []string{"text"}},
		{ID: "gpt-3.5-turbo", Family: "gpt", Tags: []string{"text"}},
	})

	r.RegisterProvider(types.ProviderSpec{
		Name: "gemini",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
			types.CapabilityEmbeddings,
			types.CapabilityVision,
		),
		DefaultRuntime: "vllm",
		Endpoint:       "https://generativelanguage.googleapis.com/v1beta/openai",
	}, []types.ModelInfo{
		{ID: "gemini-1.5-pro", Family: "gemini", Tags: []string{"text", "vision"}},
		{ID: "gemini-1.5-flash", Family: "gemini", Tags: []string{"text", "vision"}},
	})

	r.RegisterProvider(types.ProviderSpec{
		Name: "deepseek",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
			types.CapabilityFunctionCalling,
		),
		DefaultRuntime: "vllm",
		Endpoint:       "https://api.deepseek.com/v1",
	}, []types.ModelInfo{
		{ID: "deepseek-chat", Family: "deepseek", Tags: []string{"text", "code"}},
		{ID: "deepseek-coder", Family: "deepseek", Tags: []string{"code"}},
	})

	r.RegisterProvider(types.ProviderSpec{
		Name: "anthropic",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
			types.CapabilityFunctionCalling,
			types.CapabilityVision,
		),
		DefaultRuntime: "vllm",
		Endpoint:       "https://api.anthropic.com",
	}, []types.ModelInfo{
		{ID: "claude-3-5-sonnet-20241022", Family: "claude", Tags: []string{"text", "vision"}},
		{ID: "claude-3-haiku-20240307", Family: "claude", Tags: []string{"text"}},
	})

	r.RegisterProvider(types.ProviderSpec{
		Name: "huggingface",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityEmbeddings,
			types.CapabilityBatchProcessing,
		),
		DefaultRuntime: "transformers",
		Local:          true,
	}, []types.ModelInfo{
		{ID: "microsoft/DialoGPT-large", Family: "gpt", Format: "safetensors"},
		{ID: "microsoft/DialoGPT-medium", Family: "gpt", Format: "safetensors"},
	})

	r.RegisterProvider(types.ProviderSpec{
		Name: "local",
		Capabilities: types.NewCapabilitySet(
			types.CapabilityStreaming,
		),
		DefaultRuntime: "llama.cpp",
		Endpoint:       "http://localhost:11434/v1",
		Local:          true,
	}, []types.ModelInfo{
		{ID: "llama3.2:latest", Family: "llama", Format: "gguf"},
	})

	r.RegisterRuntime(types.RuntimeSpec{
		Name:              "vllm",
		Families:          []string{"llama", "mistral", "qwen", "phi", "gemma"},
		Formats:           []string{"safetensors", "fp16", "bf16"},
		SupportsStreaming: true,
		SupportsBatching:  true,
		RequiresGPU:       true,
		Priority:          90,
	})

	r.RegisterRuntime(types.RuntimeSpec{
		Name:              "llama.cpp",
		Families:          []string{"llama", "mistral", "qwen", "phi", "gemma", "codellama"},
		Formats:           []string{"gguf"},
		SupportsStreaming: true,
		MemoryEfficient:   true,
		Priority:          80,
		Local:             true,
	})

	r.RegisterRuntime(types.RuntimeSpec{
		Name:              "transformers",
		Families:          []string{"llama", "mistral", "qwen", "phi", "gemma", "bert", "gpt"},
		Formats:           []string{"safetensors", "fp16", "bf16", "int8", "int4"},
		SupportsStreaming: true,
		SupportsBatching:  true,
		Priority:          60,
		Local:             true,
	})

	r.RegisterRuntime(types.RuntimeSpec{
		Name:            "core_helpers",
		Families:        []string{"tinyllama", "distilbert"},
		Formats:         []string{"gguf", "safetensors"},
		MemoryEfficient: true,
		Priority:        10,
		Local:           true,
	})
}
