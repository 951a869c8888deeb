package profiles

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/metrics"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// Registry supplies the healthy-provider list for fallback checks.
type Registry interface {
	ListProviders(healthyOnly bool) []string
}

// Manager produces fast-path routing decisions from the active profile.
type Manager struct {
	store    *Store
	registry Registry
	logger   *logrus.Logger
}

func NewManager(store *Store, registry Registry, logger *logrus.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Store exposes the backing store for profile listing and activation.
func (m *Manager) Store() *Store {
	return m.store
}

// GetRoutingDecision resolves a provider for the task in a single pass:
// profile preference, then privacy and performance overrides, then a health
// fallback. No capability checking happens here; callers needing verified
// capabilities use the capability router.
func (m *Manager) GetRoutingDecision(task types.TaskType, flags Flags) Decision {
	prof := m.store.Active()

	provider := DefaultProvider
	if prof != nil {
		if p := prof.ProviderPreferences[task]; p != "" {
			provider = p
		}
	}
	reason := fmt.Sprintf("Profile preference for %s", task)

	profileName := ""
	privacyLevel := PrivacyMedium
	privacyProvider := localProvider
	localFallback := localProvider
	mode := FallbackGraceful
	if prof != nil {
		profileName = prof.Name
		privacyLevel = prof.PrivacyLevel
		privacyProvider = prof.PrivacyTasks
		localFallback = prof.LocalFallback
		mode = prof.FallbackMode
	}

	switch {
	case privacyLevel == PrivacyHigh || flags.ContainsPII:
		provider = privacyProvider
		reason = "High privacy requirements"
	case privacyLevel == PrivacyLow && flags.PerformanceCritical:
		if task == types.TaskCode {
			provider = "deepseek"
		} else {
			provider = "openai"
		}
		reason = "Performance optimization"
	}

	fallbackApplied := false
	healthy := m.registry.ListProviders(true)
	if !containsString(healthy, provider) {
		fallbackApplied = true
		if mode == FallbackAggressive {
			if len(healthy) > 0 {
				provider = healthy[0]
			} else {
				provider = localProvider
			}
		} else {
			provider = localFallback
		}
		metrics.FallbackRate.WithLabelValues(profileName).Inc()
	}

	confidence := 0.8
	if fallbackApplied {
		confidence -= 0.3
	}
	if flags.ComplexTask {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.1 {
		confidence = 0.1
	}

	m.logger.WithFields(logrus.Fields{
		"task":     task,
		"provider": provider,
		"reason":   reason,
		"fallback": fallbackApplied,
	}).Debug("Profile routing decision")

	return Decision{
		Profile:         profileName,
		Provider:        provider,
		Reason:          reason,
		Confidence:      confidence,
		FallbackApplied: fallbackApplied,
	}
}

// PickProvider adapts the fast path to the capability router's base
// nomination hook. The nomination is advisory; the router keeps it only when
// the provider passes capability filtering.
func (m *Manager) PickProvider(_ context.Context, req *types.RoutingRequest) (string, bool) {
	d := m.GetRoutingDecision(req.TaskType, FlagsFromRequest(req))
	if d.Provider == "" {
		return "", false
	}
	return d.Provider, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
