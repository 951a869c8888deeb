package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Capability is a named feature a provider or runtime may support.
type Capability string

const (
	CapabilityStreaming       Capability = "streaming"
	CapabilityFunctionCalling Capability = "function_calling"
	CapabilityVision          Capability = "vision"
	CapabilityEmbeddings      Capability = "embeddings"
	CapabilityCodeGeneration  Capability = "code_generation"
	CapabilityReasoning       Capability = "reasoning"
	CapabilityMultimodal      Capability = "multimodal"
	CapabilityBatchProcessing Capability = "batch_processing"
)

// AllCapabilities lists every capability in rank order. Any iteration that
// affects routing output must follow this order so results are reproducible.
var AllCapabilities = []Capability{
	CapabilityStreaming,
	CapabilityFunctionCalling,
	CapabilityVision,
	CapabilityEmbeddings,
	CapabilityCodeGeneration,
	CapabilityReasoning,
	CapabilityMultimodal,
	CapabilityBatchProcessing,
}

var capabilityRank = func() map[Capability]int {
	m := make(map[Capability]int, len(AllCapabilities))
	for i, c := range AllCapabilities {
		m[c] = i
	}
	return m
}()

func (c Capability) Valid() bool {
	_, ok := capabilityRank[c]
	return ok
}

// Rank returns the capability's position in the fixed total order. Unknown
// capabilities sort after every known one.
func (c Capability) Rank() int {
	if r, ok := capabilityRank[c]; ok {
		return r
	}
	return len(AllCapabilities)
}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// CapabilitySet is an unordered set of capabilities. Ordered views come from
// Sorted, which applies the fixed capability rank.
type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// ParseCapabilitySet builds a set from string names, rejecting unknown ones.
func ParseCapabilitySet(names []string) (CapabilitySet, error) {
	s := make(CapabilitySet, len(names))
	for _, n := range names {
		c, err := ParseCapability(n)
		if err != nil {
			return nil, err
		}
		s[c] = struct{}{}
	}
	return s, nil
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

func (s CapabilitySet) Add(c Capability) {
	s[c] = struct{}{}
}

func (s CapabilitySet) Remove(c Capability) {
	delete(s, c)
}

func (s CapabilitySet) Len() int {
	return len(s)
}

// ContainsAll reports whether s is a superset of other. The empty set is
// contained by everything.
func (s CapabilitySet) ContainsAll(other CapabilitySet) bool {
	for c := range other {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// Missing returns the members of required absent from s, in rank order.
func (s CapabilitySet) Missing(required CapabilitySet) []Capability {
	var out []Capability
	for c := range required {
		if !s.Has(c) {
			out = append(out, c)
		}
	}
	sortByRank(out)
	return out
}

// Sorted returns the set's members in rank order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sortByRank(out)
	return out
}

func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

func (s CapabilitySet) Equal(other CapabilitySet) bool {
	if len(s) != len(other) {
		return false
	}
	return s.ContainsAll(other)
}

// Strings returns the rank-ordered string names, for logging and responses.
func (s CapabilitySet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}

// MarshalJSON renders the set as a rank-ordered array.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var caps []Capability
	if err := json.Unmarshal(data, &caps); err != nil {
		return err
	}
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	*s = set
	return nil
}

func sortByRank(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool {
		ri, rj := caps[i].Rank(), caps[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return caps[i] < caps[j]
	})
}
