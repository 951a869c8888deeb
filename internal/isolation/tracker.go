package isolation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/types"
)

const (
	failureHistoryLimit = 1000
	recentFailureScan   = 20
	recentFailureWindow = 5 * time.Minute
)

// FailureType classifies what went wrong during a provider invocation.
type FailureType string

const (
	FailureProviderUnavailable FailureType = "provider_unavailable"
	FailureModelUnavailable    FailureType = "model_unavailable"
	FailureCapabilityMissing   FailureType = "capability_missing"
	FailureAuthentication      FailureType = "authentication_error"
	FailureRateLimit           FailureType = "rate_limit_error"
	FailureNetwork             FailureType = "network_error"
	FailureTimeout             FailureType = "timeout_error"
	FailureResource            FailureType = "resource_error"
	FailureConfiguration       FailureType = "configuration_error"
)

var AllFailureTypes = []FailureType{
	FailureProviderUnavailable,
	FailureModelUnavailable,
	FailureCapabilityMissing,
	FailureAuthentication,
	FailureRateLimit,
	FailureNetwork,
	FailureTimeout,
	FailureResource,
	FailureConfiguration,
}

// ParseFailureType maps a wire string onto a known failure type.
func ParseFailureType(s string) (FailureType, bool) {
	f := FailureType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFailureTypes {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// FailureEvent records one observed failure for analysis and recovery.
type FailureEvent struct {
	Timestamp          time.Time   `json:"timestamp"`
	Provider           string      `json:"provider"`
	Model              string      `json:"model,omitempty"`
	FailureType        FailureType `json:"failure_type"`
	ErrorMessage       string      `json:"error_message"`
	RequestType        string      `json:"request_type"`
	IsolationTriggered bool        `json:"isolation_triggered"`
}

// ProviderStatus describes the isolation state of one provider.
type ProviderStatus struct {
	Provider          string    `json:"provider"`
	Isolated          bool      `json:"isolated"`
	IsolationReason   string    `json:"isolation_reason,omitempty"`
	IsolatedAt        time.Time `json:"isolated_at,omitempty"`
	FailureCount      int       `json:"failure_count"`
	LastFailure       time.Time `json:"last_failure,omitempty"`
	RecoveryAttempts  int       `json:"recovery_attempts"`
	NextRecoveryCheck time.Time `json:"next_recovery_check,omitempty"`
}

// ModelFallbackChain orders the fallback models to try within one provider
// when the primary model fails.
type ModelFallbackChain struct {
	Provider            string         `json:"provider"`
	PrimaryModel        string         `json:"primary_model"`
	FallbackModels      []string       `json:"fallback_models"`
	LastSuccessfulModel string         `json:"last_successful_model,omitempty"`
	FailureCounts       map[string]int `json:"failure_counts,omitempty"`
}

// Config holds isolation behavior settings.
type Config struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	IsolationDuration     time.Duration `yaml:"isolation_duration"`
	RecoveryCheckInterval time.Duration `yaml:"recovery_check_interval"`
}

// Registry is the slice of the provider registry the tracker needs: health
// lookups for recovery probing and model listings for fallback chains.
type Registry interface {
	HealthStatus(key string) (*types.HealthStatus, bool)
	ListModels(provider string) []types.ModelInfo
}

// Tracker isolates repeatedly failing providers so one bad upstream cannot
// drag down every request. Isolation expires after a fixed duration; expired
// providers are re-admitted once a health probe passes, or unconditionally
// when no registry is wired in.
type Tracker struct {
	config   *Config
	registry Registry
	logger   *logrus.Logger

	mutex     sync.Mutex
	history   []FailureEvent
	providers map[string]*ProviderStatus
	chains    map[string]*ModelFallbackChain

	recoveryTicker *time.Ticker
	stopRecovery   chan bool
	stopped        bool
}

// NewTracker creates a tracker and starts its recovery goroutine. registry
// may be nil; expired isolations then lift without a health probe.
func NewTracker(config *Config, registry Registry, logger *logrus.Logger) *Tracker {
	if config == nil {
		config = &Config{}
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.IsolationDuration == 0 {
		config.IsolationDuration = 5 * time.Minute
	}
	if config.RecoveryCheckInterval == 0 {
		config.RecoveryCheckInterval = time.Minute
	}

	t := &Tracker{
		config:       config,
		registry:     registry,
		logger:       logger,
		providers:    make(map[string]*ProviderStatus),
		chains:       make(map[string]*ModelFallbackChain),
		stopRecovery: make(chan bool),
	}

	t.startRecoveryLoop()

	return t
}

// RecordFailure notes a failed invocation. Crossing the failure threshold
// with enough recent failures isolates the provider.
func (t *Tracker) RecordFailure(provider, model string, failureType FailureType, errorMessage, requestType string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	event := FailureEvent{
		Timestamp:    time.Now(),
		Provider:     provider,
		Model:        model,
		FailureType:  failureType,
		ErrorMessage: errorMessage,
		RequestType:  requestType,
	}
	t.history = append(t.history, event)

	status := t.statusLocked(provider)
	status.FailureCount++
	status.LastFailure = event.Timestamp

	if status.FailureCount >= t.config.FailureThreshold && !status.Isolated {
		recent := t.recentFailuresLocked(provider)
		if recent >= t.config.FailureThreshold {
			t.isolateLocked(status, fmt.Sprintf("Too many recent failures: %d", recent))
			t.history[len(t.history)-1].IsolationTriggered = true
		}
	}

	if model != "" {
		t.recordModelFailureLocked(provider, model)
	}

	if len(t.history) > failureHistoryLimit {
		t.history = t.history[len(t.history)-failureHistoryLimit:]
	}

	t.logger.WithFields(logrus.Fields{
		"provider":     provider,
		"model":        model,
		"failure_type": string(failureType),
		"error":        errorMessage,
	}).Warn("Recorded provider failure")
}

// RecordSuccess notes a successful invocation. It clears the provider's
// failure streak and marks the model as the last one known to work.
func (t *Tracker) RecordSuccess(provider, model string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if status, ok := t.providers[provider]; ok {
		status.FailureCount = 0
	}
	if model != "" {
		if chain, ok := t.chains[chainKey(provider, model)]; ok {
			chain.LastSuccessfulModel = model
		}
	}
}

// IsProviderIsolated reports whether a provider is currently isolated.
// Expired isolations trigger an immediate recovery check.
func (t *Tracker) IsProviderIsolated(provider string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	status, ok := t.providers[provider]
	if !ok || !status.Isolated {
		return false
	}

	expired := !status.IsolatedAt.IsZero() &&
		time.Now().After(status.IsolatedAt.Add(t.config.IsolationDuration))
	checkDue := status.NextRecoveryCheck.IsZero() ||
		!time.Now().Before(status.NextRecoveryCheck)
	if expired && checkDue {
		t.recoverLocked(status)
		return status.Isolated
	}

	return true
}

// IsolateProvider manually isolates a provider.
func (t *Tracker) IsolateProvider(provider, reason string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.isolateLocked(t.statusLocked(provider), reason)
}

// RecoverProvider attempts to lift a provider's isolation immediately,
// regardless of the isolation duration. It returns true when the provider is
// not isolated afterwards.
func (t *Tracker) RecoverProvider(provider string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	status, ok := t.providers[provider]
	if !ok || !status.Isolated {
		return true
	}
	return t.recoverLocked(status)
}

// AvailableProviders filters a candidate list down to providers that are not
// isolated, preserving order.
func (t *Tracker) AvailableProviders(providers []string) []string {
	available := make([]string, 0, len(providers))
	for _, provider := range providers {
		if t.IsProviderIsolated(provider) {
			t.logger.WithField("provider", provider).Debug("Skipping isolated provider")
			continue
		}
		available = append(available, provider)
	}
	return available
}

// Status returns a copy of one provider's isolation status.
func (t *Tracker) Status(provider string) (ProviderStatus, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	status, ok := t.providers[provider]
	if !ok {
		return ProviderStatus{}, false
	}
	return *status, true
}

// IsolatedProviders lists all currently isolated providers, sorted.
func (t *Tracker) IsolatedProviders() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.isolatedProvidersLocked()
}

func (t *Tracker) isolatedProvidersLocked() []string {
	var isolated []string
	for name, status := range t.providers {
		if status.Isolated {
			isolated = append(isolated, name)
		}
	}
	sort.Strings(isolated)
	return isolated
}

// FallbackChain returns the model fallback chain for a provider's primary
// model, building a default chain from the registry on first use. Fallback
// models are ordered smallest first.
func (t *Tracker) FallbackChain(provider, primaryModel string) *ModelFallbackChain {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	chain := t.chainLocked(provider, primaryModel)

	out := &ModelFallbackChain{
		Provider:            chain.Provider,
		PrimaryModel:        chain.PrimaryModel,
		FallbackModels:      append([]string(nil), chain.FallbackModels...),
		LastSuccessfulModel: chain.LastSuccessfulModel,
		FailureCounts:       make(map[string]int, len(chain.FailureCounts)),
	}
	for model, count := range chain.FailureCounts {
		out.FailureCounts[model] = count
	}
	return out
}

// ProviderFailureStats aggregates failures for a single provider.
type ProviderFailureStats struct {
	Count        int            `json:"count"`
	FailureTypes map[string]int `json:"failure_types"`
}

// FailureStatistics summarizes recorded failures.
type FailureStatistics struct {
	TotalFailures     int                              `json:"total_failures"`
	FailureTypes      map[string]int                   `json:"failure_types"`
	Providers         map[string]*ProviderFailureStats `json:"providers"`
	Models            map[string]int                   `json:"models"`
	IsolatedProviders []string                         `json:"isolated_providers"`
}

// FailureStatistics aggregates the failure history, optionally filtered to
// one provider and bounded to a recent window. A zero window means all
// recorded history.
func (t *Tracker) FailureStatistics(provider string, window time.Duration) *FailureStatistics {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	stats := &FailureStatistics{
		FailureTypes:      make(map[string]int),
		Providers:         make(map[string]*ProviderFailureStats),
		Models:            make(map[string]int),
		IsolatedProviders: t.isolatedProvidersLocked(),
	}

	for _, event := range t.history {
		if event.Timestamp.Before(cutoff) {
			continue
		}
		if provider != "" && event.Provider != provider {
			continue
		}

		stats.TotalFailures++
		stats.FailureTypes[string(event.FailureType)]++

		providerStats, ok := stats.Providers[event.Provider]
		if !ok {
			providerStats = &ProviderFailureStats{FailureTypes: make(map[string]int)}
			stats.Providers[event.Provider] = providerStats
		}
		providerStats.Count++
		providerStats.FailureTypes[string(event.FailureType)]++

		if event.Model != "" {
			stats.Models[chainKey(event.Provider, event.Model)]++
		}
	}

	return stats
}

// Stop halts the recovery goroutine.
func (t *Tracker) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	if t.recoveryTicker != nil {
		t.recoveryTicker.Stop()
	}
	close(t.stopRecovery)
}

func (t *Tracker) statusLocked(provider string) *ProviderStatus {
	status, ok := t.providers[provider]
	if !ok {
		status = &ProviderStatus{Provider: provider}
		t.providers[provider] = status
	}
	return status
}

// recentFailuresLocked counts failures for the provider inside the recent
// window, scanning at most the last 20 recorded events.
func (t *Tracker) recentFailuresLocked(provider string) int {
	cutoff := time.Now().Add(-recentFailureWindow)
	start := len(t.history) - recentFailureScan
	if start < 0 {
		start = 0
	}

	count := 0
	for _, event := range t.history[start:] {
		if event.Provider == provider && !event.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

func (t *Tracker) isolateLocked(status *ProviderStatus, reason string) {
	status.Isolated = true
	status.IsolationReason = reason
	status.IsolatedAt = time.Now()
	status.NextRecoveryCheck = time.Now().Add(t.config.RecoveryCheckInterval)

	t.logger.WithFields(logrus.Fields{
		"provider": status.Provider,
		"reason":   reason,
	}).Warn("Provider isolated")
}

// recoverLocked re-admits the provider when its health probe passes. Without
// a registry the isolation simply lifts. Failure counts survive recovery; the
// recent-failure window decides whether the next failure re-isolates.
func (t *Tracker) recoverLocked(status *ProviderStatus) bool {
	status.RecoveryAttempts++

	if t.registry != nil {
		health, ok := t.registry.HealthStatus(types.HealthKeyProvider(status.Provider))
		if !ok || health == nil || health.Status != types.HealthHealthy {
			status.NextRecoveryCheck = time.Now().Add(t.config.RecoveryCheckInterval)
			t.logger.WithField("provider", status.Provider).Debug("Provider still unhealthy, keeping isolated")
			return false
		}
	}

	status.Isolated = false
	status.IsolationReason = ""
	status.IsolatedAt = time.Time{}
	t.logger.WithField("provider", status.Provider).Info("Provider recovered from isolation")
	return true
}

func (t *Tracker) recordModelFailureLocked(provider, model string) {
	chain := t.chainLocked(provider, model)
	if chain.FailureCounts == nil {
		chain.FailureCounts = make(map[string]int)
	}
	chain.FailureCounts[model]++
	if chain.LastSuccessfulModel == model {
		chain.LastSuccessfulModel = ""
	}
}

func (t *Tracker) chainLocked(provider, primaryModel string) *ModelFallbackChain {
	key := chainKey(provider, primaryModel)
	chain, ok := t.chains[key]
	if ok {
		return chain
	}

	var fallbacks []string
	if t.registry != nil {
		for _, model := range t.registry.ListModels(provider) {
			if model.ID != primaryModel {
				fallbacks = append(fallbacks, model.ID)
			}
		}
		sort.SliceStable(fallbacks, func(i, j int) bool {
			return modelPriority(fallbacks[i]) < modelPriority(fallbacks[j])
		})
	}

	chain = &ModelFallbackChain{
		Provider:       provider,
		PrimaryModel:   primaryModel,
		FallbackModels: fallbacks,
		FailureCounts:  make(map[string]int),
	}
	t.chains[key] = chain

	t.logger.WithFields(logrus.Fields{
		"provider":  provider,
		"model":     primaryModel,
		"fallbacks": fallbacks,
	}).Debug("Created model fallback chain")
	return chain
}

func (t *Tracker) startRecoveryLoop() {
	t.recoveryTicker = time.NewTicker(t.config.RecoveryCheckInterval)

	go func() {
		for {
			select {
			case <-t.recoveryTicker.C:
				t.runRecoveryChecks()
			case <-t.stopRecovery:
				return
			}
		}
	}()
}

// runRecoveryChecks re-probes isolated providers whose isolation has expired
// and whose next scheduled check is due.
func (t *Tracker) runRecoveryChecks() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()
	for _, status := range t.providers {
		if !status.Isolated {
			continue
		}
		if now.Before(status.IsolatedAt.Add(t.config.IsolationDuration)) {
			continue
		}
		if !status.NextRecoveryCheck.IsZero() && now.Before(status.NextRecoveryCheck) {
			continue
		}
		t.recoverLocked(status)
	}
}

// Smaller models first: they make better fallbacks.
func modelPriority(modelID string) int {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "7b") || strings.Contains(id, "small"):
		return 1
	case strings.Contains(id, "13b") || strings.Contains(id, "medium"):
		return 2
	case strings.Contains(id, "70b") || strings.Contains(id, "large"):
		return 3
	default:
		return 4
	}
}

func chainKey(provider, model string) string {
	return provider + ":" + model
}
