package routing

import (
	"errors"
	"fmt"

	"github.com/tributary-ai/routing-engine/internal/types"
)

// ErrConflictingRequirement is returned when a capability is simultaneously
// required and fallback-acceptable.
var ErrConflictingRequirement = errors.New("capability both required and fallback-acceptable")

// CapabilityRequirement partitions capabilities into what must be satisfied,
// what is merely preferred, and what the caller explicitly allows routing to
// drop. Within one routing attempt capabilities only ever move from required
// to fallback-acceptable, never back.
type CapabilityRequirement struct {
	Required           types.CapabilitySet `json:"required"`
	Preferred          types.CapabilitySet `json:"preferred"`
	FallbackAcceptable types.CapabilitySet `json:"fallback_acceptable"`
}

// NewCapabilityRequirement builds a requirement, rejecting internally
// inconsistent input. Nil sets are treated as empty.
func NewCapabilityRequirement(required, preferred, fallbackAcceptable types.CapabilitySet) (CapabilityRequirement, error) {
	if required == nil {
		required = types.NewCapabilitySet()
	}
	if preferred == nil {
		preferred = types.NewCapabilitySet()
	}
	if fallbackAcceptable == nil {
		fallbackAcceptable = types.NewCapabilitySet()
	}

	for _, c := range required.Sorted() {
		if fallbackAcceptable.Has(c) {
			return CapabilityRequirement{}, fmt.Errorf("%w: %s", ErrConflictingRequirement, c)
		}
	}

	return CapabilityRequirement{
		Required:           required,
		Preferred:          preferred,
		FallbackAcceptable: fallbackAcceptable,
	}, nil
}

// withoutRequired returns a copy with the given capabilities moved from
// required to fallback-acceptable.
func (r CapabilityRequirement) withoutRequired(caps ...types.Capability) CapabilityRequirement {
	required := r.Required.Clone()
	fallback := r.FallbackAcceptable.Clone()
	for _, c := range caps {
		if required.Has(c) {
			required.Remove(c)
			fallback.Add(c)
		}
	}
	return CapabilityRequirement{
		Required:           required,
		Preferred:          r.Preferred.Clone(),
		FallbackAcceptable: fallback,
	}
}

// RoutingCapabilityRequest wraps the original request with capability
// constraints and degradation limits.
type RoutingCapabilityRequest struct {
	Original     *types.RoutingRequest `json:"original,omitempty"`
	Requirements CapabilityRequirement `json:"requirements"`

	AllowCapabilityDegradation bool `json:"allow_capability_degradation"`
	// MaxDegradationSteps bounds the degradation search. Zero disables
	// degradation even when AllowCapabilityDegradation is set.
	MaxDegradationSteps       int                `json:"max_degradation_steps"`
	PreferredDegradationOrder []types.Capability `json:"preferred_degradation_order,omitempty"`
}

// NewRoutingCapabilityRequest applies the default degradation depth of 3.
func NewRoutingCapabilityRequest(original *types.RoutingRequest, requirements CapabilityRequirement) *RoutingCapabilityRequest {
	return &RoutingCapabilityRequest{
		Original:                   original,
		Requirements:               requirements,
		AllowCapabilityDegradation: true,
		MaxDegradationSteps:        3,
	}
}

// CapabilityCheckResult is the per-provider outcome of comparing an advertised
// capability set against a requirement.
type CapabilityCheckResult struct {
	Provider                string              `json:"provider"`
	HasRequiredCapabilities bool                `json:"has_required_capabilities"`
	MissingCapabilities     []types.Capability  `json:"missing_capabilities"`
	AvailableCapabilities   types.CapabilitySet `json:"available_capabilities"`
	DegradationSuggestions  []string            `json:"degradation_suggestions"`
}

// CapabilityRoutingResult is the outcome of a capability-aware routing
// attempt. Success=false is an ordinary outcome carrying diagnostics, not an
// error. Model may be empty even on success when a capable provider has no
// registered models.
type CapabilityRoutingResult struct {
	Success              bool                `json:"success"`
	Provider             string              `json:"provider,omitempty"`
	Model                string              `json:"model,omitempty"`
	Runtime              string              `json:"runtime,omitempty"`
	AchievedCapabilities types.CapabilitySet `json:"achieved_capabilities"`
	DegradedCapabilities types.CapabilitySet `json:"degraded_capabilities"`
	RoutingReason        string              `json:"routing_reason"`
	FallbackApplied      bool                `json:"fallback_applied"`
	AlternativeOptions   []AlternativeOption `json:"alternative_options,omitempty"`
}

// AlternativeOption explains why a scanned provider could not serve the
// request, with one degradation suggestion per missing capability.
type AlternativeOption struct {
	Provider            string             `json:"provider"`
	MissingCapabilities []types.Capability `json:"missing_capabilities"`
	Suggestions         []string           `json:"suggestions"`
}

// RequirementValidation summarizes whether the current provider pool can
// satisfy a requirement and how the caller could relax it.
type RequirementValidation struct {
	CanBeSatisfied      bool                    `json:"can_be_satisfied"`
	MissingCapabilities []types.Capability      `json:"missing_capabilities"`
	DegradationOptions  []CapabilityRequirement `json:"degradation_options"`
	Recommendations     []string                `json:"recommendations"`
	ProvidersChecked    int                     `json:"providers_checked"`
}
