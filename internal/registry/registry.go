// Package registry keeps the in-memory catalog of providers, runtimes,
// models, and component health that routing decisions read. Providers and
// runtimes keep registration order; callers that take "the first healthy
// provider" rely on it.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/metrics"
	"github.com/tributary-ai/routing-engine/internal/types"
)

type Registry struct {
	logger *logrus.Logger

	mu            sync.RWMutex
	providers     map[string]*types.ProviderSpec
	providerOrder []string
	runtimes      map[string]*types.RuntimeSpec
	runtimeOrder  []string
	models        map[string][]types.ModelInfo
	health        map[string]*types.HealthStatus
	disabled      map[string]struct{}
}

func New(logger *logrus.Logger) *Registry {
	return &Registry{
		logger:    logger,
		providers: make(map[string]*types.ProviderSpec),
		runtimes:  make(map[string]*types.RuntimeSpec),
		models:    make(map[string][]types.ModelInfo),
		health:    make(map[string]*types.HealthStatus),
		disabled:  make(map[string]struct{}),
	}
}

// RegisterProvider adds or replaces a provider and its model list. Health
// starts as unknown until a probe reports otherwise.
func (r *Registry) RegisterProvider(spec types.ProviderSpec, models []types.ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[spec.Name]; !exists {
		r.providerOrder = append(r.providerOrder, spec.Name)
	}
	r.providers[spec.Name] = &spec

	for i := range models {
		models[i].Provider = spec.Name
	}
	r.models[spec.Name] = models

	key := types.HealthKeyProvider(spec.Name)
	if _, ok := r.health[key]; !ok {
		r.health[key] = &types.HealthStatus{Status: types.HealthUnknown}
	}

	r.logger.WithFields(logrus.Fields{
		"provider": spec.Name,
		"models":   len(models),
	}).Info("Registered provider")
}

// UnregisterProvider removes a provider entirely.
func (r *Registry) UnregisterProvider(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return false
	}
	delete(r.providers, name)
	delete(r.models, name)
	delete(r.disabled, name)
	delete(r.health, types.HealthKeyProvider(name))
	for i, n := range r.providerOrder {
		if n == name {
			r.providerOrder = append(r.providerOrder[:i], r.providerOrder[i+1:]...)
			break
		}
	}
	r.logger.WithField("provider", name).Info("Unregistered provider")
	return true
}

// DisableProvider hides a provider from listings without dropping its
// registration. Used for administrative exclusion.
func (r *Registry) DisableProvider(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return false
	}
	r.disabled[name] = struct{}{}
	r.logger.WithField("provider", name).Warn("Provider disabled")
	return true
}

func (r *Registry) EnableProvider(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return false
	}
	delete(r.disabled, name)
	r.logger.WithField("provider", name).Info("Provider enabled")
	return true
}

// RegisterRuntime adds or replaces a runtime.
func (r *Registry) RegisterRuntime(spec types.RuntimeSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runtimes[spec.Name]; !exists {
		r.runtimeOrder = append(r.runtimeOrder, spec.Name)
	}
	r.runtimes[spec.Name] = &spec

	key := types.HealthKeyRuntime(spec.Name)
	if _, ok := r.health[key]; !ok {
		r.health[key] = &types.HealthStatus{Status: types.HealthUnknown}
	}

	r.logger.WithField("runtime", spec.Name).Info("Registered runtime")
}

// ListProviders returns provider names in registration order, skipping
// disabled providers. With healthyOnly, providers whose cached status is
// neither healthy nor unknown are dropped; a provider never probed counts
// as usable.
func (r *Registry) ListProviders(healthyOnly bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.providerOrder))
	for _, name := range r.providerOrder {
		if _, off := r.disabled[name]; off {
			continue
		}
		if healthyOnly && !r.usableLocked(types.HealthKeyProvider(name)) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ListRuntimes returns runtime names in registration order.
func (r *Registry) ListRuntimes(healthyOnly bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.runtimeOrder))
	for _, name := range r.runtimeOrder {
		if healthyOnly && !r.usableLocked(types.HealthKeyRuntime(name)) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r *Registry) usableLocked(key string) bool {
	h, ok := r.health[key]
	if !ok {
		return true
	}
	return h.Status == types.HealthHealthy || h.Status == types.HealthUnknown
}

func (r *Registry) ProviderSpec(name string) (*types.ProviderSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.providers[name]
	return spec, ok
}

func (r *Registry) RuntimeSpec(name string) (*types.RuntimeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.runtimes[name]
	return spec, ok
}

// ListModels returns the models registered for a provider.
func (r *Registry) ListModels(provider string) []types.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := r.models[provider]
	out := make([]types.ModelInfo, len(models))
	copy(out, models)
	return out
}

// HealthStatus returns the cached status for a composite component key
// ("provider:openai", "runtime:vllm").
func (r *Registry) HealthStatus(key string) (*types.HealthStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[key]
	return h, ok
}

// SetHealth records a component's status and keeps the provider health gauge
// in step.
func (r *Registry) SetHealth(key string, status *types.HealthStatus) {
	if status.LastChecked == 0 {
		status.LastChecked = time.Now().Unix()
	}

	r.mu.Lock()
	prev := r.health[key]
	r.health[key] = status
	r.mu.Unlock()

	if name, ok := providerFromKey(key); ok {
		value := 0.0
		if status.Status == types.HealthHealthy {
			value = 1.0
		}
		metrics.ProviderHealthy.WithLabelValues(name).Set(value)
	}

	if prev != nil && prev.Status != status.Status {
		r.logger.WithFields(logrus.Fields{
			"component": key,
			"from":      prev.Status,
			"to":        status.Status,
		}).Info("Component health changed")
	}
}

// AllHealth returns a copy of the health map.
func (r *Registry) AllHealth() map[string]*types.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*types.HealthStatus, len(r.health))
	for k, v := range r.health {
		copied := *v
		out[k] = &copied
	}
	return out
}

// CompatibleRuntimes lists runtimes able to execute the model, highest
// priority first. A model without family or format metadata matches every
// runtime.
func (r *Registry) CompatibleRuntimes(model types.ModelInfo) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var compatible []string
	for _, name := range r.runtimeOrder {
		if runtimeCompatible(model, r.runtimes[name]) {
			compatible = append(compatible, name)
		}
	}
	sort.SliceStable(compatible, func(i, j int) bool {
		return r.runtimes[compatible[i]].Priority > r.runtimes[compatible[j]].Priority
	})
	return compatible
}

func runtimeCompatible(model types.ModelInfo, runtime *types.RuntimeSpec) bool {
	if model.Format != "" && len(runtime.Formats) > 0 && !containsString(runtime.Formats, model.Format) {
		return false
	}
	if model.Family != "" && len(runtime.Families) > 0 && !containsString(runtime.Families, model.Family) {
		return false
	}
	return true
}

func providerFromKey(key string) (string, bool) {
	const prefix = "provider:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
