package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/profiles"
	"github.com/tributary-ai/routing-engine/internal/routing"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// handleRoute runs the full routing precedence for one request.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req types.RoutingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	decision, err := s.engine.Route(r.Context(), &req)
	if err != nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Routing failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, decision)
}

// handleDryRun replays the routing precedence with diagnostics and never
// mutates stats.
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req types.RoutingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.DryRun(&req))
}

// handleOutcome feeds an invocation result back into scoring and isolation.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome engine.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if outcome.Provider == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "provider is required")
		return
	}

	s.engine.RecordOutcome(outcome)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "recorded",
		"provider": outcome.Provider,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetStats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "reset",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	names := s.policies.List()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": names,
		"active":   s.policies.ActiveName(),
		"count":    len(names),
	})
}

func (s *Server) handleActivePolicy(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.PolicyInfo())
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if body.Policy == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "policy name is required")
		return
	}

	previous := s.policies.ActiveName()
	if err := s.engine.UpdatePolicy(body.Policy); err != nil {
		s.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":   body.Policy,
		"previous": previous,
	})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	names := s.registry.ListProviders(false)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": names,
		"count":     len(names),
	})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	spec, ok := s.registry.ProviderSpec(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Provider %s not found", name))
		return
	}

	health, ok := s.registry.HealthStatus(types.HealthKeyProvider(name))
	if !ok {
		health = &types.HealthStatus{Status: types.HealthUnknown}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   name,
		"spec":   spec,
		"models": s.registry.ListModels(name),
		"health": health,
	})
}

// handleHealth reports the partitioned registry health map. Degraded
// deployments answer 503 so load balancers can see it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.engine.HealthReport()

	status := "healthy"
	statusCode := http.StatusOK
	if report.Summary.UnhealthyComponents > 0 {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"health":    report,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleComponentHealth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["component"]

	var kind, key string
	if _, ok := s.registry.ProviderSpec(name); ok {
		kind, key = "provider", types.HealthKeyProvider(name)
	} else if _, ok := s.registry.RuntimeSpec(name); ok {
		kind, key = "runtime", types.HealthKeyRuntime(name)
	} else {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Component %s not found", name))
		return
	}

	health, ok := s.registry.HealthStatus(key)
	if !ok {
		health = &types.HealthStatus{Status: types.HealthUnknown}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"component": name,
		"kind":      kind,
		"health":    health,
		"timestamp": time.Now().Unix(),
	})
}

// handleCapabilities returns the advertised capability matrix.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	matrix := make(map[string][]string)
	for _, name := range s.registry.ListProviders(false) {
		if spec, ok := s.registry.ProviderSpec(name); ok {
			matrix[name] = spec.Capabilities.Strings()
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": matrix,
		"count":        len(matrix),
		"timestamp":    time.Now().Unix(),
	})
}

type capabilityRouteRequest struct {
	Request                   types.RoutingRequest `json:"request"`
	RequiredCapabilities      []string             `json:"required_capabilities"`
	PreferredCapabilities     []string             `json:"preferred_capabilities,omitempty"`
	FallbackCapabilities      []string             `json:"fallback_capabilities,omitempty"`
	AllowDegradation          *bool                `json:"allow_degradation,omitempty"`
	MaxDegradationSteps       *int                 `json:"max_degradation_steps,omitempty"`
	PreferredDegradationOrder []string             `json:"preferred_degradation_order,omitempty"`
}

// handleCapabilityRoute routes with hard capability requirements and
// optional degradation.
func (s *Server) handleCapabilityRoute(w http.ResponseWriter, r *http.Request) {
	var body capabilityRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	requirement, err := parseRequirement(body.RequiredCapabilities, body.PreferredCapabilities, body.FallbackCapabilities)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Request.ID == "" {
		body.Request.ID = uuid.NewString()
	}

	capReq := routing.NewRoutingCapabilityRequest(&body.Request, requirement)
	if body.AllowDegradation != nil {
		capReq.AllowCapabilityDegradation = *body.AllowDegradation
	}
	if body.MaxDegradationSteps != nil {
		capReq.MaxDegradationSteps = *body.MaxDegradationSteps
	}
	for _, name := range body.PreferredDegradationOrder {
		c, err := types.ParseCapability(name)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		capReq.PreferredDegradationOrder = append(capReq.PreferredDegradationOrder, c)
	}

	decision, result := s.engine.RouteWithCapabilities(r.Context(), capReq)
	if !result.Success {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": map[string]interface{}{
				"message": result.RoutingReason,
				"type":    "routing_error",
				"code":    http.StatusServiceUnavailable,
			},
			"result":    result,
			"timestamp": time.Now().Unix(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decision": decision,
		"result":   result,
	})
}

type capabilityCheckRequest struct {
	Provider              string   `json:"provider"`
	RequiredCapabilities  []string `json:"required_capabilities"`
	PreferredCapabilities []string `json:"preferred_capabilities,omitempty"`
}

// handleCapabilityCheck compares one provider's advertised capabilities
// against a requirement.
func (s *Server) handleCapabilityCheck(w http.ResponseWriter, r *http.Request) {
	var body capabilityCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if body.Provider == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "provider is required")
		return
	}

	if _, ok := s.registry.ProviderSpec(body.Provider); !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Provider %s not found", body.Provider))
		return
	}

	requirement, err := parseRequirement(body.RequiredCapabilities, body.PreferredCapabilities, nil)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, s.capabilities.CheckProviderCapabilities(body.Provider, requirement))
}

func parseRequirement(required, preferred, fallback []string) (routing.CapabilityRequirement, error) {
	requiredSet, err := types.ParseCapabilitySet(required)
	if err != nil {
		return routing.CapabilityRequirement{}, err
	}
	preferredSet, err := types.ParseCapabilitySet(preferred)
	if err != nil {
		return routing.CapabilityRequirement{}, err
	}
	fallbackSet, err := types.ParseCapabilitySet(fallback)
	if err != nil {
		return routing.CapabilityRequirement{}, err
	}
	return routing.NewCapabilityRequirement(requiredSet, preferredSet, fallbackSet)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list := s.profiles.Store().List()

	byName := make(map[string]*profiles.Profile, len(list))
	for _, p := range list {
		byName[p.Name] = p
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": byName,
		"active":   s.profiles.Store().ActiveName(),
		"count":    len(list),
	})
}

func (s *Server) handleSetActiveProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Profile string `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if body.Profile == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "profile name is required")
		return
	}

	if err := s.profiles.Store().SetActive(body.Profile); err != nil {
		s.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": body.Profile,
	})
}

// handleProfileDecision runs the profile fast path only, without the full
// routing precedence.
func (s *Server) handleProfileDecision(w http.ResponseWriter, r *http.Request) {
	var req types.RoutingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	req.ApplyDefaults()

	decision := s.profiles.GetRoutingDecision(req.TaskType, profiles.FlagsFromRequest(&req))
	s.writeJSON(w, http.StatusOK, decision)
}
