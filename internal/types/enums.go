package types

import (
	"fmt"
	"strings"
)

// TaskType classifies what the caller wants the model to do.
type TaskType string

const (
	TaskChat          TaskType = "chat"
	TaskCode          TaskType = "code"
	TaskReasoning     TaskType = "reasoning"
	TaskEmbedding     TaskType = "embedding"
	TaskSummarization TaskType = "summarization"
	TaskTranslation   TaskType = "translation"
	TaskCreative      TaskType = "creative"
	TaskAnalysis      TaskType = "analysis"
)

var AllTaskTypes = []TaskType{
	TaskChat,
	TaskCode,
	TaskReasoning,
	TaskEmbedding,
	TaskSummarization,
	TaskTranslation,
	TaskCreative,
	TaskAnalysis,
}

func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTaskTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// PrivacyLevel bounds which providers and runtimes may see request content.
type PrivacyLevel string

const (
	PrivacyPublic       PrivacyLevel = "public"
	PrivacyInternal     PrivacyLevel = "internal"
	PrivacyConfidential PrivacyLevel = "confidential"
	PrivacyRestricted   PrivacyLevel = "restricted"
)

var AllPrivacyLevels = []PrivacyLevel{
	PrivacyPublic,
	PrivacyInternal,
	PrivacyConfidential,
	PrivacyRestricted,
}

func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	p := PrivacyLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPrivacyLevels {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown privacy level %q", s)
}

// PerformanceRequirement describes latency expectations for the request.
type PerformanceRequirement string

const (
	PerformanceInteractive PerformanceRequirement = "interactive"
	PerformanceBatch       PerformanceRequirement = "batch"
	PerformanceBackground  PerformanceRequirement = "background"
)

var AllPerformanceRequirements = []PerformanceRequirement{
	PerformanceInteractive,
	PerformanceBatch,
	PerformanceBackground,
}

func ParsePerformanceRequirement(s string) (PerformanceRequirement, error) {
	p := PerformanceRequirement(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPerformanceRequirements {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown performance requirement %q", s)
}

// Health states reported by the registry. Components never seen by a probe
// report HealthUnknown, which routing treats as usable.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)
