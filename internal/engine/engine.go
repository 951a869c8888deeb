package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/metrics"
	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/routing"
	"github.com/tributary-ai/routing-engine/internal/scoring"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// ErrNoViableRoute is returned when every selection stage, including degraded
// mode when enabled, comes up empty.
var ErrNoViableRoute = errors.New("no viable LLM providers or runtimes available")

// Registry is the catalog view the engine routes against.
type Registry interface {
	ListProviders(healthyOnly bool) []string
	ListRuntimes(healthyOnly bool) []string
	ProviderSpec(name string) (*types.ProviderSpec, bool)
	RuntimeSpec(name string) (*types.RuntimeSpec, bool)
	ListModels(provider string) []types.ModelInfo
	HealthStatus(key string) (*types.HealthStatus, bool)
	AllHealth() map[string]*types.HealthStatus
	CompatibleRuntimes(model types.ModelInfo) []string
}

// IsolationTracker excludes repeatedly failing providers and receives outcome
// reports. Satisfied by the isolation tracker; may be nil.
type IsolationTracker interface {
	IsProviderIsolated(name string) bool
	IsolatedProviders() []string
	AvailableProviders(providers []string) []string
	RecordFailure(provider, model string, failureType isolation.FailureType, errorMessage, requestType string)
	RecordSuccess(provider, model string)
}

// Config holds engine behavior settings.
type Config struct {
	EnableDegradedMode bool `yaml:"enable_degraded_mode"`
}

// Decision duration outcome labels, doubling as stats buckets.
const (
	outcomeSuccess  = "success"
	outcomeFallback = "fallback"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
)

// Engine orchestrates routing: selection precedence over the registry, policy,
// and health state; capability routing through the CapabilityRouter; scoring
// through the confidence scorer; stats and outcome recording.
//
// Selection precedence for Route:
//  1. explicit user preference (provider + model, optionally runtime)
//  2. policy-based selection (task + privacy + performance)
//  3. system defaults with health filtering
//  4. local model fallback
//  5. degraded mode
type Engine struct {
	registry  Registry
	router    *routing.CapabilityRouter
	scorer    *scoring.Scorer
	policies  *policy.Manager
	isolation IsolationTracker
	config    Config
	logger    *logrus.Logger

	mu    sync.Mutex
	stats RoutingStats
}

// New creates an engine. tracker may be nil.
func New(registry Registry, router *routing.CapabilityRouter, scorer *scoring.Scorer, policies *policy.Manager, tracker IsolationTracker, config Config, logger *logrus.Logger) *Engine {
	return &Engine{
		registry:  registry,
		router:    router,
		scorer:    scorer,
		policies:  policies,
		isolation: tracker,
		config:    config,
		logger:    logger,
	}
}

// Route selects a (provider, runtime, model) triple for the request, walking
// the selection precedence until a stage yields a decision. The decision
// carries the stage's confidence and reason plus the scorer's multi-factor
// confidence score.
func (e *Engine) Route(ctx context.Context, req *types.RoutingRequest) (*RouteDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	req.ApplyDefaults()
	pol := e.policies.Active()

	e.mu.Lock()
	e.stats.TotalRequests++
	e.mu.Unlock()

	decision, outcome := e.selectRoute(req, pol)
	if decision == nil {
		e.bumpStat(outcomeFailed)
		metrics.DecisionDuration.WithLabelValues(outcomeFailed).Observe(time.Since(start).Seconds())
		e.logger.WithFields(logrus.Fields{
			"task_type":     req.TaskType,
			"privacy_level": req.PrivacyLevel,
		}).Error("Routing failed, no viable providers or runtimes")
		return nil, ErrNoViableRoute
	}

	e.finalize(req, pol, decision)

	e.bumpStat(outcome)
	metrics.DecisionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	metrics.ModelInvocations.WithLabelValues(decision.Provider, decision.Model).Inc()

	e.logger.WithFields(logrus.Fields{
		"provider":   decision.Provider,
		"runtime":    decision.Runtime,
		"model":      decision.Model,
		"confidence": decision.Confidence,
		"reason":     decision.Reason,
	}).Info("Routing decision made")

	return decision, nil
}

// RouteWithCapabilities runs the capability-correct path: the router selects
// under hard constraints, degrading when allowed, and the scorer attaches the
// multi-factor confidence. A failed search returns the router's diagnostics
// with a nil decision; per the routing contract that is not an error.
func (e *Engine) RouteWithCapabilities(ctx context.Context, capReq *routing.RoutingCapabilityRequest) (*RouteDecision, *routing.CapabilityRoutingResult) {
	start := time.Now()
	pol := e.policies.Active()

	e.mu.Lock()
	e.stats.TotalRequests++
	e.mu.Unlock()

	result := e.router.RouteWithCapabilities(ctx, capReq)
	if !result.Success {
		e.bumpStat(outcomeFailed)
		metrics.DecisionDuration.WithLabelValues(outcomeFailed).Observe(time.Since(start).Seconds())
		return nil, result
	}

	req := capReq.Original
	if req == nil {
		req = &types.RoutingRequest{}
	}
	req.ApplyDefaults()

	decision := &RouteDecision{
		Provider:         result.Provider,
		Runtime:          result.Runtime,
		Model:            result.Model,
		Reason:           result.RoutingReason,
		FallbackChain:    e.buildFallbackChain(pol),
		EstimatedCost:    estimateCost(result.Provider, result.Model),
		EstimatedLatency: estimateLatency(result.Provider, result.Runtime),
		PrivacyCompliant: e.privacyCompliant(pol, req.PrivacyLevel, result.Provider, result.Runtime),
		Capabilities:     result.AchievedCapabilities.Strings(),
	}
	if result.DegradedCapabilities.Len() > 0 {
		decision.DegradedCapabilities = result.DegradedCapabilities.Strings()
	}

	e.finalize(req, pol, decision)
	decision.Confidence = decision.ConfidenceScore

	e.bumpStat(outcomeSuccess)
	metrics.DecisionDuration.WithLabelValues(outcomeSuccess).Observe(time.Since(start).Seconds())
	metrics.ModelInvocations.WithLabelValues(decision.Provider, decision.Model).Inc()

	e.logger.WithFields(logrus.Fields{
		"provider": decision.Provider,
		"runtime":  decision.Runtime,
		"model":    decision.Model,
		"degraded": decision.DegradedCapabilities,
	}).Info("Capability routing decision made")

	return decision, result
}

// finalize stamps identity and attaches the scorer's verdict.
func (e *Engine) finalize(req *types.RoutingRequest, pol *policy.RoutingPolicy, d *RouteDecision) {
	d.ID = uuid.NewString()
	d.RequestID = req.ID
	d.Timestamp = time.Now()

	providerSpec, _ := e.registry.ProviderSpec(d.Provider)
	runtimeSpec, _ := e.registry.RuntimeSpec(d.Runtime)
	score, md := e.scorer.ScoreRoutingDecision(req, d.Provider, d.Runtime, d.Model, pol, providerSpec, runtimeSpec)
	d.ConfidenceScore = score
	d.ConfidenceMetadata = md
}

func (e *Engine) selectRoute(req *types.RoutingRequest, pol *policy.RoutingPolicy) (*RouteDecision, string) {
	if req.PreferredProvider != "" && req.PreferredModel != "" {
		if d := e.tryExplicitPreference(req, pol); d != nil {
			return d, outcomeSuccess
		}
	}

	if d := e.policySelection(req, pol); d != nil {
		return d, outcomeSuccess
	}

	if d := e.systemDefaultSelection(req, pol); d != nil {
		return d, outcomeFallback
	}

	if d := e.localFallbackSelection(req, pol); d != nil {
		return d, outcomeFallback
	}

	if e.config.EnableDegradedMode {
		return e.degradedSelection(), outcomeDegraded
	}

	return nil, outcomeFailed
}

// tryExplicitPreference honors a full user preference when the named provider
// is usable. An unusable preferred runtime falls back to runtime
// auto-selection rather than failing the stage.
func (e *Engine) tryExplicitPreference(req *types.RoutingRequest, pol *policy.RoutingPolicy) *RouteDecision {
	name := req.PreferredProvider

	if e.isolation != nil && e.isolation.IsProviderIsolated(name) {
		e.logger.WithField("provider", name).Info("Preferred provider is isolated")
		return nil
	}
	if h, ok := e.registry.HealthStatus(types.HealthKeyProvider(name)); ok && h.Status != types.HealthHealthy && h.Status != types.HealthUnknown {
		e.logger.WithFields(logrus.Fields{
			"provider": name,
			"status":   h.Status,
		}).Info("Preferred provider is unhealthy")
		return nil
	}

	spec, ok := e.registry.ProviderSpec(name)
	if !ok {
		e.logger.WithField("provider", name).Info("Preferred provider not found")
		return nil
	}

	// Runtime compatibility intentionally checks a bare model: explicit
	// preferences route on priority order, not on family metadata.
	probe := types.ModelInfo{ID: req.PreferredModel, Provider: name}

	if rt := req.PreferredRuntime; rt != "" && e.runtimeHealthy(rt) {
		if _, found := e.registry.RuntimeSpec(rt); found && containsString(e.registry.CompatibleRuntimes(probe), rt) {
			return &RouteDecision{
				Provider:         name,
				Runtime:          rt,
				Model:            req.PreferredModel,
				Reason:           "Explicit user preference (provider + model + runtime)",
				Confidence:       1.0,
				FallbackChain:    []string{},
				PrivacyCompliant: e.privacyCompliant(pol, req.PrivacyLevel, name, rt),
				Capabilities:     spec.Capabilities.Strings(),
			}
		}
	}

	for _, rt := range e.registry.CompatibleRuntimes(probe) {
		if !e.runtimeHealthy(rt) {
			continue
		}
		return &RouteDecision{
			Provider:         name,
			Runtime:          rt,
			Model:            req.PreferredModel,
			Reason:           "Explicit user preference (provider + model)",
			Confidence:       0.9,
			FallbackChain:    []string{},
			PrivacyCompliant: e.privacyCompliant(pol, req.PrivacyLevel, name, rt),
			Capabilities:     spec.Capabilities.Strings(),
		}
	}

	return nil
}

// policySelection routes by the active policy's task, privacy, and
// performance maps. A policy pick outside the privacy allow-list is replaced
// with the first healthy allowed alternative; no alternative fails the stage.
func (e *Engine) policySelection(req *types.RoutingRequest, pol *policy.RoutingPolicy) *RouteDecision {
	provider := e.policyProvider(req, pol)
	runtime := e.policyRuntime(req, pol)

	if !containsString(pol.PrivacyProviderMap[req.PrivacyLevel], provider) {
		provider = ""
		for _, candidate := range pol.PrivacyProviderMap[req.PrivacyLevel] {
			if e.providerUsable(candidate) {
				provider = candidate
				break
			}
		}
		if provider == "" {
			return nil
		}
	}

	if !containsString(pol.PrivacyRuntimeMap[req.PrivacyLevel], runtime) {
		runtime = ""
		for _, candidate := range pol.PrivacyRuntimeMap[req.PrivacyLevel] {
			if e.runtimeHealthy(candidate) {
				runtime = candidate
				break
			}
		}
		if runtime == "" {
			return nil
		}
	}

	if !e.providerUsable(provider) || !e.runtimeHealthy(runtime) {
		return nil
	}

	spec, ok := e.registry.ProviderSpec(provider)
	if !ok {
		return nil
	}

	if required := req.RequiredCapabilities(); required.Len() > 0 {
		capReq, _ := routing.NewCapabilityRequirement(required, nil, nil)
		check := e.router.CheckProviderCapabilities(provider, capReq)
		if !check.HasRequiredCapabilities {
			e.logger.WithFields(logrus.Fields{
				"provider": provider,
				"missing":  check.MissingCapabilities,
			}).Debug("Policy candidate missing required capabilities")
			return nil
		}
	}

	model := e.selectModel(provider, req)
	if model == "" {
		return nil
	}

	return &RouteDecision{
		Provider:         provider,
		Runtime:          runtime,
		Model:            model,
		Reason:           fmt.Sprintf("Policy-based selection for %s task with %s privacy", req.TaskType, req.PrivacyLevel),
		Confidence:       e.calculateConfidence(req, pol, provider, runtime),
		FallbackChain:    e.buildFallbackChain(pol),
		EstimatedCost:    estimateCost(provider, model),
		EstimatedLatency: estimateLatency(provider, runtime),
		PrivacyCompliant: true,
		Capabilities:     spec.Capabilities.Strings(),
	}
}

// systemDefaultSelection takes the first healthy, privacy-compliant provider
// in registration order and the first healthy compliant runtime compatible
// with its default model.
func (e *Engine) systemDefaultSelection(req *types.RoutingRequest, pol *policy.RoutingPolicy) *RouteDecision {
	selected := ""
	for _, name := range e.registry.ListProviders(true) {
		if e.isolation != nil && e.isolation.IsProviderIsolated(name) {
			continue
		}
		if e.privacyCompliant(pol, req.PrivacyLevel, name, "") {
			selected = name
			break
		}
	}
	if selected == "" {
		return nil
	}

	model := e.selectModel(selected, req)
	if model == "" {
		return nil
	}

	runtime := ""
	probe := types.ModelInfo{ID: model, Provider: selected}
	for _, rt := range e.registry.CompatibleRuntimes(probe) {
		if e.runtimeHealthy(rt) && e.privacyCompliant(pol, req.PrivacyLevel, selected, rt) {
			runtime = rt
			break
		}
	}
	if runtime == "" {
		return nil
	}

	var caps []string
	if spec, ok := e.registry.ProviderSpec(selected); ok {
		caps = spec.Capabilities.Strings()
	}

	return &RouteDecision{
		Provider:         selected,
		Runtime:          runtime,
		Model:            model,
		Reason:           "System default selection with health filtering",
		Confidence:       0.7,
		FallbackChain:    e.buildFallbackChain(pol),
		EstimatedCost:    estimateCost(selected, model),
		EstimatedLatency: estimateLatency(selected, runtime),
		PrivacyCompliant: e.privacyCompliant(pol, req.PrivacyLevel, selected, runtime),
		Capabilities:     caps,
	}
}

func (e *Engine) localFallbackSelection(req *types.RoutingRequest, pol *policy.RoutingPolicy) *RouteDecision {
	for _, provider := range []string{"local", "huggingface"} {
		if !e.providerUsable(provider) {
			continue
		}
		if !e.privacyCompliant(pol, req.PrivacyLevel, provider, "") {
			continue
		}
		model := e.selectModel(provider, req)
		if model == "" {
			continue
		}

		for _, runtime := range []string{"llama.cpp", "transformers"} {
			if !e.runtimeHealthy(runtime) || !e.privacyCompliant(pol, req.PrivacyLevel, provider, runtime) {
				continue
			}

			var caps []string
			if spec, ok := e.registry.ProviderSpec(provider); ok {
				caps = spec.Capabilities.Strings()
			}

			return &RouteDecision{
				Provider:         provider,
				Runtime:          runtime,
				Model:            model,
				Reason:           "Local fallback selection",
				Confidence:       0.5,
				FallbackChain:    []string{},
				EstimatedCost:    floatPtr(0.0),
				EstimatedLatency: estimateLatency(provider, runtime),
				PrivacyCompliant: true,
				Capabilities:     caps,
			}
		}
	}
	return nil
}

func (e *Engine) degradedSelection() *RouteDecision {
	e.logger.WithField("reason", "all_providers_failed").Warn("Degraded mode selected")

	return &RouteDecision{
		Provider:         "core_helpers",
		Runtime:          "core_helpers",
		Model:            "tinyllama+distilbert+spacy",
		Reason:           "Degraded mode - all other options failed",
		Confidence:       0.2,
		FallbackChain:    []string{},
		EstimatedCost:    floatPtr(0.0),
		EstimatedLatency: floatPtr(1.0),
		PrivacyCompliant: true,
		Capabilities:     []string{"basic_text", "simple_analysis"},
	}
}

// calculateConfidence scores a policy-stage pick: 0.5 base, +0.2 per policy
// match, +0.1 per healthy component, capped at 1.0.
func (e *Engine) calculateConfidence(req *types.RoutingRequest, pol *policy.RoutingPolicy, provider, runtime string) float64 {
	confidence := 0.5

	if provider == e.policyProvider(req, pol) {
		confidence += 0.2
	}
	if runtime == e.policyRuntime(req, pol) {
		confidence += 0.2
	}
	if e.providerUsable(provider) {
		confidence += 0.1
	}
	if e.runtimeHealthy(runtime) {
		confidence += 0.1
	}

	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

func (e *Engine) policyProvider(req *types.RoutingRequest, pol *policy.RoutingPolicy) string {
	if name := pol.TaskProviderMap[req.TaskType]; name != "" {
		return name
	}
	if name := pol.PerformanceProviderMap[req.PerformanceReq]; name != "" {
		return name
	}
	if len(pol.FallbackProviders) > 0 {
		return pol.FallbackProviders[0]
	}
	return "local"
}

func (e *Engine) policyRuntime(req *types.RoutingRequest, pol *policy.RoutingPolicy) string {
	if name := pol.TaskRuntimeMap[req.TaskType]; name != "" {
		return name
	}
	if name := pol.PerformanceRuntimeMap[req.PerformanceReq]; name != "" {
		return name
	}
	if len(pol.FallbackRuntimes) > 0 {
		return pol.FallbackRuntimes[0]
	}
	return "llama.cpp"
}

// providerUsable is the routing health gate: not isolated, and health absent,
// healthy, or unknown. Never-probed components pass.
func (e *Engine) providerUsable(name string) bool {
	if e.isolation != nil && e.isolation.IsProviderIsolated(name) {
		return false
	}
	return e.healthPasses(types.HealthKeyProvider(name))
}

func (e *Engine) runtimeHealthy(name string) bool {
	return e.healthPasses(types.HealthKeyRuntime(name))
}

func (e *Engine) healthPasses(key string) bool {
	h, ok := e.registry.HealthStatus(key)
	if !ok {
		return true
	}
	return h.Status == types.HealthHealthy || h.Status == types.HealthUnknown
}

func (e *Engine) privacyCompliant(pol *policy.RoutingPolicy, level types.PrivacyLevel, provider, runtime string) bool {
	if !containsString(pol.PrivacyProviderMap[level], provider) {
		return false
	}
	if runtime != "" && !containsString(pol.PrivacyRuntimeMap[level], runtime) {
		return false
	}
	return true
}

func (e *Engine) bumpStat(outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch outcome {
	case outcomeSuccess:
		e.stats.SuccessfulRoutes++
	case outcomeFallback:
		e.stats.FallbackRoutes++
	case outcomeDegraded:
		e.stats.DegradedRoutes++
	case outcomeFailed:
		e.stats.FailedRoutes++
	}
}

// Stats returns the outcome counters plus active policy information.
func (e *Engine) Stats() StatsReport {
	e.mu.Lock()
	stats := e.stats
	e.mu.Unlock()

	pol := e.policies.Active()
	return StatsReport{
		RoutingStats: stats,
		ActivePolicy: pol.Name,
		PolicyWeights: map[string]float64{
			"privacy":      pol.PrivacyWeight,
			"performance":  pol.PerformanceWeight,
			"cost":         pol.CostWeight,
			"availability": pol.AvailabilityWeight,
		},
	}
}

// ResetStats zeroes the outcome counters.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	e.stats = RoutingStats{}
	e.mu.Unlock()
}

// UpdatePolicy switches the active routing policy by name.
func (e *Engine) UpdatePolicy(name string) error {
	old := e.policies.ActiveName()
	if err := e.policies.SetActive(name); err != nil {
		return err
	}
	e.logger.Infof("Updated routing policy from '%s' to '%s'", old, name)
	return nil
}

// PolicyInfo describes the active policy.
func (e *Engine) PolicyInfo() PolicyInfo {
	pol := e.policies.Active()
	return PolicyInfo{
		Name:        pol.Name,
		Description: pol.Description,
		Weights: map[string]float64{
			"privacy":      pol.PrivacyWeight,
			"performance":  pol.PerformanceWeight,
			"cost":         pol.CostWeight,
			"availability": pol.AvailabilityWeight,
		},
		FallbackProviders: append([]string(nil), pol.FallbackProviders...),
		FallbackRuntimes:  append([]string(nil), pol.FallbackRuntimes...),
	}
}

// HealthReport partitions current component health for the health endpoint.
func (e *Engine) HealthReport() HealthReport {
	all := e.registry.AllHealth()

	report := HealthReport{
		HealthyProviders:    []string{},
		HealthyRuntimes:     []string{},
		UnhealthyComponents: make(map[string]*types.HealthStatus),
		IsolatedProviders:   []string{},
	}

	for key, status := range all {
		if status.Status == types.HealthHealthy || status.Status == types.HealthUnknown {
			switch {
			case strings.HasPrefix(key, "provider:"):
				report.HealthyProviders = append(report.HealthyProviders, key)
			case strings.HasPrefix(key, "runtime:"):
				report.HealthyRuntimes = append(report.HealthyRuntimes, key)
			}
		} else {
			report.UnhealthyComponents[key] = status
		}
	}
	sort.Strings(report.HealthyProviders)
	sort.Strings(report.HealthyRuntimes)

	if e.isolation != nil {
		report.IsolatedProviders = e.isolation.IsolatedProviders()
	}

	report.Summary = HealthSummary{
		TotalComponents:     len(all),
		HealthyComponents:   len(report.HealthyProviders) + len(report.HealthyRuntimes),
		UnhealthyComponents: len(report.UnhealthyComponents),
	}

	return report
}

// RecordOutcome feeds an invocation result back into the scorer's history,
// the isolation tracker, and the response time metric.
func (e *Engine) RecordOutcome(o Outcome) {
	e.scorer.RecordPerformance(o.Provider, o.Runtime, o.ResponseTime, o.Success)
	if o.Cost != nil {
		e.scorer.RecordCost(o.Provider, o.Model, *o.Cost)
	}

	if e.isolation != nil {
		if o.Success {
			e.isolation.RecordSuccess(o.Provider, o.Model)
		} else {
			failureType, ok := isolation.ParseFailureType(o.FailureType)
			if !ok {
				failureType = isolation.FailureProviderUnavailable
			}
			e.isolation.RecordFailure(o.Provider, o.Model, failureType, o.ErrorMessage, o.RequestType)
		}
	}

	metrics.ResponseTime.WithLabelValues(o.Provider, o.Model).Observe(o.ResponseTime)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
