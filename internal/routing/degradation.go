package routing

import (
	"fmt"

	"github.com/tributary-ai/routing-engine/internal/types"
)

// DegradationStrategyTable maps a capability to the ordered tactics available
// when no provider can satisfy it. Pure data, shared by routing diagnostics
// and requirement validation.
type DegradationStrategyTable struct {
	tactics map[types.Capability][]string
}

// NewDegradationStrategyTable returns the standard table. Capabilities absent
// from the table cannot be degraded automatically.
func NewDegradationStrategyTable() *DegradationStrategyTable {
	return &DegradationStrategyTable{
		tactics: map[types.Capability][]string{
			types.CapabilityStreaming:       {"Fallback to non-streaming response"},
			types.CapabilityFunctionCalling: {"Fallback to text-only response"},
			types.CapabilityVision:          {"Fallback to text-only processing"},
			types.CapabilityMultimodal:      {"Fallback to single-modal processing"},
		},
	}
}

// TacticsFor returns the ordered degradation tactics for a capability, or nil
// when none exist.
func (t *DegradationStrategyTable) TacticsFor(c types.Capability) []string {
	tactics := t.tactics[c]
	if len(tactics) == 0 {
		return nil
	}
	out := make([]string, len(tactics))
	copy(out, tactics)
	return out
}

// SuggestionFor returns the primary tactic for a capability, or a generic
// explanation when the capability cannot be degraded.
func (t *DegradationStrategyTable) SuggestionFor(c types.Capability) string {
	if tactics := t.tactics[c]; len(tactics) > 0 {
		return tactics[0]
	}
	return fmt.Sprintf("No automatic degradation available for %s", c)
}

// Degradable reports whether at least one tactic exists for the capability.
func (t *DegradationStrategyTable) Degradable(c types.Capability) bool {
	return len(t.tactics[c]) > 0
}
