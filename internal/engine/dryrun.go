package engine

import (
	"fmt"
	"sort"

	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// DryRunReport explains, step by step, what Route would decide for a request
// without mutating stats or recording metrics. PolicyAnalysis is nil when the
// walk resolves before the policy stage runs.
type DryRunReport struct {
	RequestSummary      RequestSummary      `json:"request_summary"`
	RoutingSteps        []RoutingStep       `json:"routing_steps"`
	AvailableProviders  []ProviderInventory `json:"available_providers"`
	AvailableRuntimes   []RuntimeInventory  `json:"available_runtimes"`
	PolicyAnalysis      *PolicyAnalysis     `json:"policy_analysis"`
	FinalRecommendation *StepDecision       `json:"final_recommendation"`
	AlternativeOptions  []Alternative       `json:"alternative_options"`
}

// RequestSummary echoes the routing-relevant request fields.
type RequestSummary struct {
	TaskType                types.TaskType               `json:"task_type"`
	PrivacyLevel            types.PrivacyLevel           `json:"privacy_level"`
	PerformanceReq          types.PerformanceRequirement `json:"performance_req"`
	PreferredProvider       string                       `json:"preferred_provider,omitempty"`
	PreferredModel          string                       `json:"preferred_model,omitempty"`
	RequiresStreaming       bool                         `json:"requires_streaming"`
	RequiresFunctionCalling bool                         `json:"requires_function_calling"`
	RequiresVision          bool                         `json:"requires_vision"`
}

// RoutingStep is one precedence stage's analysis. Steps appear in walk order
// and stop once a stage produces a recommendation.
type RoutingStep struct {
	Step   int          `json:"step"`
	Name   string       `json:"name"`
	Result StepAnalysis `json:"result"`
}

// StepAnalysis reports whether a stage would succeed, and why not when it
// would not. Analysis carries stage-specific diagnostic keys; the policy stage
// fills PolicyAnalysis instead.
type StepAnalysis struct {
	Viable         bool                   `json:"viable"`
	Decision       *StepDecision          `json:"decision"`
	Issues         []string               `json:"issues"`
	Analysis       map[string]interface{} `json:"analysis,omitempty"`
	PolicyAnalysis *PolicyAnalysis        `json:"policy_analysis,omitempty"`
}

// StepDecision names the triple a viable stage would pick. Runtime is
// "auto-selected" when the live path would defer to compatibility ordering.
type StepDecision struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Runtime  string `json:"runtime"`
}

// PolicyAnalysis shows how the active policy maps this request, before any
// health or privacy gating.
type PolicyAnalysis struct {
	TaskBasedProvider        string             `json:"task_based_provider"`
	PerformanceBasedProvider string             `json:"performance_based_provider"`
	SelectedProvider         string             `json:"selected_provider"`
	TaskBasedRuntime         string             `json:"task_based_runtime"`
	PerformanceBasedRuntime  string             `json:"performance_based_runtime"`
	SelectedRuntime          string             `json:"selected_runtime"`
	PrivacyConstraints       PrivacyConstraints `json:"privacy_constraints"`
}

// PrivacyConstraints lists the components the active policy allows at the
// request's privacy level.
type PrivacyConstraints struct {
	AllowedProviders []string `json:"allowed_providers"`
	AllowedRuntimes  []string `json:"allowed_runtimes"`
}

// Alternative is one viable (provider, runtime, model) combination ranked by
// policy-stage confidence.
type Alternative struct {
	Provider         string   `json:"provider"`
	Runtime          string   `json:"runtime"`
	Model            string   `json:"model"`
	Confidence       float64  `json:"confidence"`
	EstimatedCost    *float64 `json:"estimated_cost"`
	EstimatedLatency *float64 `json:"estimated_latency"`
	PrivacyCompliant bool     `json:"privacy_compliant"`
}

// ProviderInventory is one registered provider's routing-relevant surface.
type ProviderInventory struct {
	Name           string   `json:"name"`
	Capabilities   []string `json:"capabilities"`
	HealthStatus   string   `json:"health_status"`
	DefaultRuntime string   `json:"default_runtime,omitempty"`
	Local          bool     `json:"local"`
}

// RuntimeInventory is one registered runtime's routing-relevant surface.
type RuntimeInventory struct {
	Name         string   `json:"name"`
	Families     []string `json:"families"`
	Formats      []string `json:"formats"`
	HealthStatus string   `json:"health_status"`
	RequiresGPU  bool     `json:"requires_gpu"`
	Priority     int      `json:"priority"`
}

// DryRun walks the selection precedence for the request and reports each
// stage's verdict, the component inventory, and ranked alternatives. It reads
// the same registry, policy, and isolation state as Route but records nothing.
func (e *Engine) DryRun(req *types.RoutingRequest) *DryRunReport {
	req.ApplyDefaults()
	pol := e.policies.Active()

	report := &DryRunReport{
		RequestSummary: RequestSummary{
			TaskType:                req.TaskType,
			PrivacyLevel:            req.PrivacyLevel,
			PerformanceReq:          req.PerformanceReq,
			PreferredProvider:       req.PreferredProvider,
			PreferredModel:          req.PreferredModel,
			RequiresStreaming:       req.RequiresStreaming,
			RequiresFunctionCalling: req.RequiresFunctionCalling,
			RequiresVision:          req.RequiresVision,
		},
		RoutingSteps:       []RoutingStep{},
		AlternativeOptions: []Alternative{},
	}

	for _, name := range e.registry.ListProviders(false) {
		inv := ProviderInventory{Name: name, Capabilities: []string{}, HealthStatus: types.HealthUnknown}
		if spec, ok := e.registry.ProviderSpec(name); ok {
			inv.Capabilities = spec.Capabilities.Strings()
			inv.DefaultRuntime = spec.DefaultRuntime
			inv.Local = spec.Local
		}
		if h, ok := e.registry.HealthStatus(types.HealthKeyProvider(name)); ok {
			inv.HealthStatus = h.Status
		}
		report.AvailableProviders = append(report.AvailableProviders, inv)
	}

	for _, name := range e.registry.ListRuntimes(false) {
		inv := RuntimeInventory{Name: name, Families: []string{}, Formats: []string{}, HealthStatus: types.HealthUnknown, Priority: 50}
		if spec, ok := e.registry.RuntimeSpec(name); ok {
			inv.Families = spec.Families
			inv.Formats = spec.Formats
			inv.RequiresGPU = spec.RequiresGPU
			inv.Priority = spec.Priority
		}
		if h, ok := e.registry.HealthStatus(types.HealthKeyRuntime(name)); ok {
			inv.HealthStatus = h.Status
		}
		report.AvailableRuntimes = append(report.AvailableRuntimes, inv)
	}

	if req.PreferredProvider != "" && req.PreferredModel != "" {
		result := e.analyzeExplicitPreference(req, pol)
		report.RoutingSteps = append(report.RoutingSteps, RoutingStep{Step: 1, Name: "Explicit User Preference", Result: result})
		if result.Viable {
			report.FinalRecommendation = result.Decision
		}
	}

	if report.FinalRecommendation == nil {
		result := e.analyzePolicySelection(req, pol)
		report.RoutingSteps = append(report.RoutingSteps, RoutingStep{Step: 2, Name: "Policy-Based Selection", Result: result})
		report.PolicyAnalysis = result.PolicyAnalysis
		if result.Viable {
			report.FinalRecommendation = result.Decision
		}
	}

	if report.FinalRecommendation == nil {
		result := e.analyzeSystemDefaults(req, pol)
		report.RoutingSteps = append(report.RoutingSteps, RoutingStep{Step: 3, Name: "System Default Selection", Result: result})
		if result.Viable {
			report.FinalRecommendation = result.Decision
		}
	}

	if report.FinalRecommendation == nil {
		result := e.analyzeLocalFallback(req, pol)
		report.RoutingSteps = append(report.RoutingSteps, RoutingStep{Step: 4, Name: "Local Fallback Selection", Result: result})
		if result.Viable {
			report.FinalRecommendation = result.Decision
		}
	}

	if report.FinalRecommendation == nil {
		result := e.analyzeDegradedMode()
		report.RoutingSteps = append(report.RoutingSteps, RoutingStep{Step: 5, Name: "Degraded Mode Selection", Result: result})
		if result.Viable {
			report.FinalRecommendation = result.Decision
		}
	}

	report.AlternativeOptions = e.generateAlternatives(req, pol)

	return report
}

func (e *Engine) analyzeExplicitPreference(req *types.RoutingRequest, pol *policy.RoutingPolicy) StepAnalysis {
	result := StepAnalysis{Issues: []string{}, Analysis: map[string]interface{}{}}

	if req.PreferredProvider == "" || req.PreferredModel == "" {
		result.Issues = append(result.Issues, "No explicit preferences specified")
		return result
	}

	name := req.PreferredProvider

	if e.isolation != nil && e.isolation.IsProviderIsolated(name) {
		result.Issues = append(result.Issues, fmt.Sprintf("Preferred provider %s is isolated", name))
		return result
	}

	status := types.HealthUnknown
	if h, ok := e.registry.HealthStatus(types.HealthKeyProvider(name)); ok {
		status = h.Status
	}
	result.Analysis["provider_health"] = status

	if status != types.HealthHealthy && status != types.HealthUnknown {
		result.Issues = append(result.Issues, fmt.Sprintf("Preferred provider %s is unhealthy: %s", name, status))
		return result
	}

	spec, ok := e.registry.ProviderSpec(name)
	if !ok {
		result.Issues = append(result.Issues, fmt.Sprintf("Preferred provider %s not found", name))
		return result
	}
	result.Analysis["provider_capabilities"] = spec.Capabilities.Strings()

	if !e.privacyCompliant(pol, req.PrivacyLevel, name, req.PreferredRuntime) {
		result.Issues = append(result.Issues, "Preferred provider/runtime does not meet privacy requirements")
		return result
	}

	runtime := req.PreferredRuntime
	if runtime == "" {
		runtime = "auto-selected"
	}

	result.Viable = true
	result.Decision = &StepDecision{Provider: name, Model: req.PreferredModel, Runtime: runtime}
	return result
}

// analyzePolicySelection gates the raw policy pick without the live path's
// privacy substitution, so it surfaces the policy's own fit for the request.
func (e *Engine) analyzePolicySelection(req *types.RoutingRequest, pol *policy.RoutingPolicy) StepAnalysis {
	provider := e.policyProvider(req, pol)
	runtime := e.policyRuntime(req, pol)

	result := StepAnalysis{
		Issues: []string{},
		PolicyAnalysis: &PolicyAnalysis{
			TaskBasedProvider:        pol.TaskProviderMap[req.TaskType],
			PerformanceBasedProvider: pol.PerformanceProviderMap[req.PerformanceReq],
			SelectedProvider:         provider,
			TaskBasedRuntime:         pol.TaskRuntimeMap[req.TaskType],
			PerformanceBasedRuntime:  pol.PerformanceRuntimeMap[req.PerformanceReq],
			SelectedRuntime:          runtime,
			PrivacyConstraints: PrivacyConstraints{
				AllowedProviders: append([]string{}, pol.PrivacyProviderMap[req.PrivacyLevel]...),
				AllowedRuntimes:  append([]string{}, pol.PrivacyRuntimeMap[req.PrivacyLevel]...),
			},
		},
	}

	if !e.privacyCompliant(pol, req.PrivacyLevel, provider, runtime) {
		result.Issues = append(result.Issues, "Policy selection does not meet privacy requirements")
		return result
	}

	if !e.providerUsable(provider) {
		result.Issues = append(result.Issues, fmt.Sprintf("Policy-selected provider %s is unhealthy", provider))
		return result
	}
	if !e.runtimeHealthy(runtime) {
		result.Issues = append(result.Issues, fmt.Sprintf("Policy-selected runtime %s is unhealthy", runtime))
		return result
	}

	result.Viable = true
	result.Decision = &StepDecision{Provider: provider, Model: e.selectModel(provider, req), Runtime: runtime}
	return result
}

func (e *Engine) analyzeSystemDefaults(req *types.RoutingRequest, pol *policy.RoutingPolicy) StepAnalysis {
	result := StepAnalysis{Issues: []string{}, Analysis: map[string]interface{}{}}

	healthy := []string{}
	for _, name := range e.registry.ListProviders(true) {
		if e.isolation != nil && e.isolation.IsProviderIsolated(name) {
			continue
		}
		if e.privacyCompliant(pol, req.PrivacyLevel, name, "") {
			healthy = append(healthy, name)
		}
	}
	result.Analysis["healthy_providers"] = healthy

	if len(healthy) == 0 {
		result.Issues = append(result.Issues, "No healthy providers available that meet privacy requirements")
		return result
	}

	selected := healthy[0]
	model := e.selectModel(selected, req)
	if model == "" {
		result.Issues = append(result.Issues, fmt.Sprintf("No suitable model found for provider %s", selected))
		return result
	}

	result.Viable = true
	result.Decision = &StepDecision{Provider: selected, Model: model, Runtime: "auto-selected"}
	return result
}

func (e *Engine) analyzeLocalFallback(req *types.RoutingRequest, pol *policy.RoutingPolicy) StepAnalysis {
	result := StepAnalysis{Issues: []string{}, Analysis: map[string]interface{}{}}

	available := []string{}
	for _, name := range []string{"local", "huggingface"} {
		if e.providerUsable(name) {
			available = append(available, name)
		}
	}
	result.Analysis["available_local_providers"] = available

	if len(available) == 0 {
		result.Issues = append(result.Issues, "No healthy local providers available")
		return result
	}

	selected := available[0]

	result.Viable = true
	result.Decision = &StepDecision{Provider: selected, Model: e.selectModel(selected, req), Runtime: "llama.cpp"}
	return result
}

func (e *Engine) analyzeDegradedMode() StepAnalysis {
	result := StepAnalysis{Issues: []string{}, Analysis: map[string]interface{}{}}

	if !e.config.EnableDegradedMode {
		result.Issues = append(result.Issues, "Degraded mode is disabled")
		return result
	}
	result.Analysis["degraded_mode_status"] = true

	result.Viable = true
	result.Decision = &StepDecision{Provider: "core_helpers", Model: "tinyllama+distilbert+spacy", Runtime: "core_helpers"}
	return result
}

// generateAlternatives enumerates every healthy, privacy-compliant
// (provider, runtime) pairing with its default model, ranked by policy-stage
// confidence, trimmed to the top five.
func (e *Engine) generateAlternatives(req *types.RoutingRequest, pol *policy.RoutingPolicy) []Alternative {
	alternatives := []Alternative{}

	for _, provider := range e.registry.ListProviders(true) {
		if e.isolation != nil && e.isolation.IsProviderIsolated(provider) {
			continue
		}
		if !e.privacyCompliant(pol, req.PrivacyLevel, provider, "") {
			continue
		}

		model := e.selectModel(provider, req)
		if model == "" {
			continue
		}

		probe := types.ModelInfo{ID: model, Provider: provider}
		for _, runtime := range e.registry.CompatibleRuntimes(probe) {
			if !e.runtimeHealthy(runtime) {
				continue
			}
			if !e.privacyCompliant(pol, req.PrivacyLevel, provider, runtime) {
				continue
			}

			alternatives = append(alternatives, Alternative{
				Provider:         provider,
				Runtime:          runtime,
				Model:            model,
				Confidence:       e.calculateConfidence(req, pol, provider, runtime),
				EstimatedCost:    estimateCost(provider, model),
				EstimatedLatency: estimateLatency(provider, runtime),
				PrivacyCompliant: true,
			})
		}
	}

	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Confidence > alternatives[j].Confidence
	})

	if len(alternatives) > 5 {
		alternatives = alternatives[:5]
	}
	return alternatives
}
