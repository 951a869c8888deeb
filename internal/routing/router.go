package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/types"
)

// Registry supplies provider capability, model, and health data. Implemented
// by the in-memory registry; routing only depends on this view.
type Registry interface {
	ListProviders(healthyOnly bool) []string
	ProviderSpec(name string) (*types.ProviderSpec, bool)
	ListModels(provider string) []types.ModelInfo
}

// IsolationTracker reports providers temporarily excluded from routing after
// repeated failures.
type IsolationTracker interface {
	IsProviderIsolated(name string) bool
}

// BaseRouter lets an outer selection strategy nominate a provider before
// capability filtering. The nomination is honored only when it names a capable
// provider.
type BaseRouter interface {
	PickProvider(ctx context.Context, req *types.RoutingRequest) (string, bool)
}

// CapabilityRouter matches capability requirements against the registry,
// degrading requirements in bounded steps when nothing matches outright.
// Provider capability sets are cached per router instance and survive until
// ResetCapabilityCache is called.
type CapabilityRouter struct {
	registry  Registry
	isolation IsolationTracker
	base      BaseRouter
	table     *DegradationStrategyTable
	logger    *logrus.Logger

	mu       sync.RWMutex
	capCache map[string]types.CapabilitySet
}

// NewCapabilityRouter creates a router. isolation and base may be nil.
func NewCapabilityRouter(registry Registry, isolation IsolationTracker, base BaseRouter, logger *logrus.Logger) *CapabilityRouter {
	return &CapabilityRouter{
		registry:  registry,
		isolation: isolation,
		base:      base,
		table:     NewDegradationStrategyTable(),
		logger:    logger,
		capCache:  make(map[string]types.CapabilitySet),
	}
}

// StrategyTable exposes the degradation table for diagnostics rendering.
func (r *CapabilityRouter) StrategyTable() *DegradationStrategyTable {
	return r.table
}

// RouteWithCapabilities searches for a provider satisfying the request's
// required capabilities, degrading the requirement in bounded steps when
// allowed. "No provider found" is an ordinary result, never an error.
func (r *CapabilityRouter) RouteWithCapabilities(ctx context.Context, req *RoutingCapabilityRequest) *CapabilityRoutingResult {
	result := r.routeOnce(ctx, req.Original, req.Requirements)
	if result.Success {
		r.logger.WithFields(logrus.Fields{
			"provider": result.Provider,
			"model":    result.Model,
			"required": req.Requirements.Required.Strings(),
		}).Debug("Capability routing matched without degradation")
		return result
	}

	if req.AllowCapabilityDegradation && req.MaxDegradationSteps > 0 {
		alternatives := r.orderedAlternatives(req.Requirements, req.PreferredDegradationOrder)
		steps := req.MaxDegradationSteps
		if steps > len(alternatives) {
			steps = len(alternatives)
		}

		for i := 0; i < steps; i++ {
			alt := alternatives[i]
			degraded := r.routeOnce(ctx, req.Original, alt)
			if !degraded.Success {
				continue
			}

			dropped := types.NewCapabilitySet()
			for _, c := range req.Requirements.Required.Sorted() {
				if !alt.Required.Has(c) {
					dropped.Add(c)
				}
			}
			degraded.DegradedCapabilities = dropped
			degraded.FallbackApplied = true
			degraded.RoutingReason = fmt.Sprintf(
				"Provider %s selected after degrading capabilities %v",
				degraded.Provider, dropped.Strings())

			r.logger.WithFields(logrus.Fields{
				"provider":  degraded.Provider,
				"degraded":  dropped.Strings(),
				"step":      i + 1,
				"max_steps": req.MaxDegradationSteps,
			}).Info("Capability routing succeeded with degradation")
			return degraded
		}
	}

	result.RoutingReason = "No provider satisfies the required capabilities, even after degradation"
	result.AlternativeOptions = r.alternativeOptions(req.Requirements)

	r.logger.WithFields(logrus.Fields{
		"required":     req.Requirements.Required.Strings(),
		"alternatives": len(result.AlternativeOptions),
	}).Warn("Capability routing found no provider")
	return result
}

// routeOnce performs a single search pass with degradation disabled.
func (r *CapabilityRouter) routeOnce(ctx context.Context, original *types.RoutingRequest, req CapabilityRequirement) *CapabilityRoutingResult {
	capable := r.capableProviders(req)
	if len(capable) == 0 {
		return &CapabilityRoutingResult{
			Success:              false,
			AchievedCapabilities: types.NewCapabilitySet(),
			DegradedCapabilities: types.NewCapabilitySet(),
		}
	}

	selected := capable[0]
	if r.base != nil && original != nil {
		if pick, ok := r.base.PickProvider(ctx, original); ok && containsString(capable, pick) {
			selected = pick
		}
	}

	model := ""
	if models := r.registry.ListModels(selected); len(models) > 0 {
		model = models[0].ID
	} else {
		r.logger.WithField("provider", selected).Warn("Capable provider has no registered models")
	}

	runtime := ""
	if spec, ok := r.registry.ProviderSpec(selected); ok {
		runtime = spec.DefaultRuntime
	}

	return &CapabilityRoutingResult{
		Success:              true,
		Provider:             selected,
		Model:                model,
		Runtime:              runtime,
		AchievedCapabilities: req.Required.Clone(),
		DegradedCapabilities: types.NewCapabilitySet(),
		RoutingReason:        fmt.Sprintf("Provider %s satisfies all required capabilities", selected),
	}
}

// CheckProviderCapabilities compares one provider's advertised capabilities
// against a requirement. Results are a pure function of current registry
// state and the per-instance capability cache.
func (r *CapabilityRouter) CheckProviderCapabilities(provider string, req CapabilityRequirement) CapabilityCheckResult {
	available := r.providerCapabilities(provider)
	missing := available.Missing(req.Required)

	suggestions := make([]string, 0, len(missing))
	for _, c := range missing {
		suggestions = append(suggestions, r.table.SuggestionFor(c))
	}

	return CapabilityCheckResult{
		Provider:                provider,
		HasRequiredCapabilities: len(missing) == 0,
		MissingCapabilities:     missing,
		AvailableCapabilities:   available.Clone(),
		DegradationSuggestions:  suggestions,
	}
}

// ValidateRequirements scans every healthy, non-isolated provider and reports
// whether the requirement can be satisfied, which capabilities are missing
// across the pool, and how the caller could relax the requirement.
func (r *CapabilityRouter) ValidateRequirements(req CapabilityRequirement) RequirementValidation {
	available := r.availableProviders()
	validation := RequirementValidation{ProvidersChecked: len(available)}

	missingUnion := types.NewCapabilitySet()
	for _, name := range available {
		check := r.CheckProviderCapabilities(name, req)
		if check.HasRequiredCapabilities {
			validation.CanBeSatisfied = true
		}
		for _, c := range check.MissingCapabilities {
			missingUnion.Add(c)
		}
	}

	validation.MissingCapabilities = missingUnion.Sorted()
	validation.DegradationOptions = r.CapabilityAlternatives(req)
	for _, c := range validation.MissingCapabilities {
		if rec, ok := capabilityRecommendations[c]; ok {
			validation.Recommendations = append(validation.Recommendations, rec)
		}
	}
	return validation
}

var capabilityRecommendations = map[types.Capability]string{
	types.CapabilityStreaming:       "Mark streaming as fallback-acceptable to allow buffered responses",
	types.CapabilityFunctionCalling: "Mark function_calling as fallback-acceptable to allow text-only responses",
	types.CapabilityVision:          "Mark vision as fallback-acceptable to allow text-only processing",
}

// CapabilityAlternatives generates degradation candidates in a fixed priority
// order: single-capability removals by capability rank, then streaming and
// function calling dropped together, then everything except streaming dropped.
func (r *CapabilityRouter) CapabilityAlternatives(req CapabilityRequirement) []CapabilityRequirement {
	return r.orderedAlternatives(req, nil)
}

func (r *CapabilityRouter) orderedAlternatives(req CapabilityRequirement, order []types.Capability) []CapabilityRequirement {
	required := req.Required.Sorted()
	if len(order) > 0 {
		required = applyPreferredOrder(req.Required, order)
	}

	var alternatives []CapabilityRequirement

	for _, c := range required {
		alternatives = append(alternatives, req.withoutRequired(c))
	}

	if req.Required.Has(types.CapabilityStreaming) && req.Required.Has(types.CapabilityFunctionCalling) {
		alternatives = append(alternatives,
			req.withoutRequired(types.CapabilityStreaming, types.CapabilityFunctionCalling))
	}

	if req.Required.Has(types.CapabilityStreaming) && req.Required.Len() > 1 {
		var others []types.Capability
		for _, c := range req.Required.Sorted() {
			if c != types.CapabilityStreaming {
				others = append(others, c)
			}
		}
		alternatives = append(alternatives, req.withoutRequired(others...))
	}

	return alternatives
}

// ResetCapabilityCache drops cached capability sets. Call after a registry
// refresh changes provider capabilities.
func (r *CapabilityRouter) ResetCapabilityCache() {
	r.mu.Lock()
	r.capCache = make(map[string]types.CapabilitySet)
	r.mu.Unlock()
}

// providerCapabilities returns the cached capability set for a provider,
// reading the registry on first use.
func (r *CapabilityRouter) providerCapabilities(name string) types.CapabilitySet {
	r.mu.RLock()
	caps, ok := r.capCache[name]
	r.mu.RUnlock()
	if ok {
		return caps
	}

	caps = types.NewCapabilitySet()
	if spec, found := r.registry.ProviderSpec(name); found && spec.Capabilities != nil {
		caps = spec.Capabilities.Clone()
	}

	r.mu.Lock()
	r.capCache[name] = caps
	r.mu.Unlock()
	return caps
}

// capableProviders lists non-isolated providers whose capability set is a
// superset of the requirement. An empty required set matches every provider.
func (r *CapabilityRouter) capableProviders(req CapabilityRequirement) []string {
	var capable []string
	for _, name := range r.availableProviders() {
		if r.providerCapabilities(name).ContainsAll(req.Required) {
			capable = append(capable, name)
		}
	}
	return capable
}

func (r *CapabilityRouter) availableProviders() []string {
	var out []string
	for _, name := range r.registry.ListProviders(true) {
		if r.isolation != nil && r.isolation.IsProviderIsolated(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r *CapabilityRouter) alternativeOptions(req CapabilityRequirement) []AlternativeOption {
	var options []AlternativeOption
	for _, name := range r.availableProviders() {
		check := r.CheckProviderCapabilities(name, req)
		if check.HasRequiredCapabilities {
			continue
		}
		options = append(options, AlternativeOption{
			Provider:            name,
			MissingCapabilities: check.MissingCapabilities,
			Suggestions:         check.DegradationSuggestions,
		})
	}
	return options
}

// applyPreferredOrder returns the set's members with those named in order
// first, then the rest by rank.
func applyPreferredOrder(set types.CapabilitySet, order []types.Capability) []types.Capability {
	seen := make(map[types.Capability]bool, len(order))
	var out []types.Capability
	for _, c := range order {
		if set.Has(c) && !seen[c] {
			out = append(out, c)
			seen[c] = true
		}
	}
	for _, c := range set.Sorted() {
		if !seen[c] {
			out = append(out, c)
		}
	}
	return out
}

func containsString(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
