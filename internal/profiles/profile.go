// Package profiles implements the fast-path routing decision: a single-pass
// lookup against a caller profile, with no capability verification. Profiles
// are persisted as one JSON document and hot-reloaded on edit.
package profiles

import (
	"github.com/tributary-ai/routing-engine/internal/types"
)

// Profile privacy posture. This is the profile's standing stance, distinct
// from the per-request types.PrivacyLevel used by the capability path.
const (
	PrivacyHigh   = "high"
	PrivacyMedium = "medium"
	PrivacyLow    = "low"
)

// Fallback behavior when the resolved provider is unhealthy.
const (
	FallbackGraceful   = "graceful"
	FallbackAggressive = "aggressive"
)

// DefaultProvider is used when no profile preference covers the task.
const DefaultProvider = "openai"

// localProvider anchors privacy overrides and graceful fallback when a
// profile leaves those fields empty.
const localProvider = "local"

// Profile captures one caller's standing routing preferences.
type Profile struct {
	// Name mirrors the document key and is filled on load.
	Name string `json:"-"`

	// ProviderPreferences maps task types to the preferred provider.
	ProviderPreferences map[types.TaskType]string `json:"provider_preferences"`

	// PrivacyTasks names the provider forced for privacy-sensitive work.
	PrivacyTasks string `json:"privacy_tasks"`

	// LocalFallback names the provider used by graceful fallback.
	LocalFallback string `json:"local_fallback"`

	// FallbackMode is graceful or aggressive.
	FallbackMode string `json:"fallback_mode"`

	// PrivacyLevel is high, medium, or low.
	PrivacyLevel string `json:"privacy_level"`
}

// DefaultProfile mirrors the default policy's task mappings so a zero-config
// deployment routes sensibly.
func DefaultProfile() *Profile {
	return &Profile{
		Name: "default",
		ProviderPreferences: map[types.TaskType]string{
			types.TaskChat:          "openai",
			types.TaskCode:          "deepseek",
			types.TaskReasoning:     "gemini",
			types.TaskEmbedding:     "huggingface",
			types.TaskSummarization: "local",
			types.TaskTranslation:   "gemini",
			types.TaskCreative:      "openai",
			types.TaskAnalysis:      "gemini",
		},
		PrivacyTasks:  localProvider,
		LocalFallback: localProvider,
		FallbackMode:  FallbackGraceful,
		PrivacyLevel:  PrivacyMedium,
	}
}

func (p *Profile) applyDefaults() {
	if p.ProviderPreferences == nil {
		p.ProviderPreferences = make(map[types.TaskType]string)
	}
	if p.PrivacyTasks == "" {
		p.PrivacyTasks = localProvider
	}
	if p.LocalFallback == "" {
		p.LocalFallback = localProvider
	}
	if p.FallbackMode == "" {
		p.FallbackMode = FallbackGraceful
	}
	if p.PrivacyLevel == "" {
		p.PrivacyLevel = PrivacyMedium
	}
}

// Flags carry the caller's per-request hints for the fast path.
type Flags struct {
	ContainsPII         bool `json:"contains_pii"`
	PerformanceCritical bool `json:"performance_critical"`
	ComplexTask         bool `json:"complex_task"`
}

// FlagsFromRequest reads fast-path hints from request metadata.
func FlagsFromRequest(req *types.RoutingRequest) Flags {
	return Flags{
		ContainsPII:         metadataFlag(req.Metadata, "contains_pii"),
		PerformanceCritical: metadataFlag(req.Metadata, "performance_critical"),
		ComplexTask:         metadataFlag(req.Metadata, "complex_task"),
	}
}

func metadataFlag(md map[string]interface{}, key string) bool {
	if md == nil {
		return false
	}
	b, ok := md[key].(bool)
	return ok && b
}

// Decision is the outcome of the profile fast path.
type Decision struct {
	Profile         string  `json:"profile"`
	Provider        string  `json:"provider"`
	Reason          string  `json:"reason"`
	Confidence      float64 `json:"confidence"`
	FallbackApplied bool    `json:"fallback_applied"`
}
