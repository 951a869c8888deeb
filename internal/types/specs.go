package types

// Registry-facing specs
//
// ProviderSpec describes a provider's advertised surface. Capabilities drive
// routing; DefaultRuntime is used when no policy names a runtime for the task.
type ProviderSpec struct {
	Name           string        `json:"name"`
	Capabilities   CapabilitySet `json:"capabilities"`
	DefaultRuntime string        `json:"default_runtime,omitempty"`
	Endpoint       string        `json:"endpoint,omitempty"`
	Local          bool          `json:"local"`
}

// RuntimeSpec describes an execution runtime (vllm, transformers, llama.cpp,
// core_helpers). Families and Formats bound which models the runtime can
// execute; Priority orders compatible runtimes, higher first.
type RuntimeSpec struct {
	Name              string   `json:"name"`
	Families          []string `json:"families,omitempty"`
	Formats           []string `json:"formats,omitempty"`
	SupportsStreaming bool     `json:"supports_streaming"`
	SupportsBatching  bool     `json:"supports_batching"`
	RequiresGPU       bool     `json:"requires_gpu"`
	MemoryEfficient   bool     `json:"memory_efficient"`
	Priority          int      `json:"priority"`
	Local             bool     `json:"local"`
}

type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	Family        string   `json:"family,omitempty"`
	Format        string   `json:"format,omitempty"`
	ContextWindow int      `json:"context_window,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Health check types
type HealthStatus struct {
	Status       string `json:"status"` // "healthy", "degraded", "unhealthy", "unknown"
	ResponseTime int64  `json:"response_time_ms"`
	LastChecked  int64  `json:"last_checked"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// HealthKeyProvider and HealthKeyRuntime build the registry's composite
// health-map keys ("provider:openai", "runtime:vllm").
func HealthKeyProvider(name string) string { return "provider:" + name }

func HealthKeyRuntime(name string) string { return "runtime:" + name }
