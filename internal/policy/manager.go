package policy

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/routing-engine/internal/types"
)

// Manager holds builtin and custom routing policies and tracks which one is
// active. Custom policies live as YAML files in a configurable directory and
// are loaded once at construction.
type Manager struct {
	logger    *logrus.Logger
	configDir string

	mu       sync.RWMutex
	policies map[string]*RoutingPolicy
	order    []string
	active   string
}

// NewManager loads the builtin policies and, when configDir is non-empty, any
// custom YAML policies it contains. The balanced policy starts active.
// Unreadable custom files are logged and skipped.
func NewManager(configDir string, logger *logrus.Logger) *Manager {
	m := &Manager{
		logger:    logger,
		configDir: configDir,
		policies:  make(map[string]*RoutingPolicy),
	}

	m.register(privacyFirstPolicy())
	m.register(performanceFirstPolicy())
	m.register(costOptimizedPolicy())
	balanced := balancedPolicy()
	m.register(balanced)

	// "default" aliases the balanced policy
	m.policies["default"] = balanced
	m.order = append(m.order, "default")

	m.active = "balanced"
	m.loadCustomPolicies()
	return m
}

func (m *Manager) register(p *RoutingPolicy) {
	if _, exists := m.policies[p.Name]; !exists {
		m.order = append(m.order, p.Name)
	}
	m.policies[p.Name] = p
}

func (m *Manager) loadCustomPolicies() {
	if m.configDir == "" {
		return
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(m.configDir, pattern))
		if err != nil {
			m.logger.WithError(err).Error("Failed to scan policy directory")
			return
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, file := range files {
		p, err := loadPolicyFile(file, m.logger)
		if err != nil {
			m.logger.WithError(err).WithField("file", file).Error("Failed to load policy file")
			continue
		}
		m.register(p)
		m.logger.WithField("policy", p.Name).Info("Loaded custom policy")
	}
}

func loadPolicyFile(path string, logger *logrus.Logger) (*RoutingPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p RoutingPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	p.normalize(logger)
	return &p, nil
}

// Get returns the named policy.
func (m *Manager) Get(name string) (*RoutingPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[name]
	return p, ok
}

// List returns all policy names in registration order: builtins first, then
// custom policies in file order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Active returns the currently active policy.
func (m *Manager) Active() *RoutingPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policies[m.active]
}

// ActiveName returns the name the active policy was selected under.
func (m *Manager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetActive switches the active policy by name.
func (m *Manager) SetActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[name]; !ok {
		return fmt.Errorf("unknown policy %q", name)
	}
	m.active = name
	m.logger.WithField("policy", name).Info("Active policy changed")
	return nil
}

// Save writes the policy to the policy directory as YAML and registers it.
// Builtin names cannot be overwritten.
func (m *Manager) Save(p *RoutingPolicy) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if IsBuiltin(p.Name) {
		return fmt.Errorf("cannot overwrite builtin policy %q", p.Name)
	}
	if m.configDir == "" {
		return fmt.Errorf("no policy directory configured")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}
	path := filepath.Join(m.configDir, p.Name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}

	m.mu.Lock()
	m.register(p)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"policy": p.Name,
		"file":   path,
	}).Info("Saved policy")
	return nil
}

// Delete removes a custom policy and its file. It returns false when the
// policy does not exist and an error when the name is builtin. Deleting the
// active policy reactivates balanced.
func (m *Manager) Delete(name string) (bool, error) {
	if IsBuiltin(name) {
		return false, fmt.Errorf("cannot delete builtin policy %q", name)
	}

	m.mu.Lock()
	if _, ok := m.policies[name]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.policies, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == name {
		m.active = "balanced"
	}
	m.mu.Unlock()

	if m.configDir != "" {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(m.configDir, name+ext)
			err := os.Remove(path)
			if err == nil {
				break
			}
			if !os.IsNotExist(err) {
				return true, fmt.Errorf("failed to remove policy file: %w", err)
			}
		}
	}

	m.logger.WithField("policy", name).Info("Deleted policy")
	return true, nil
}

// Validate checks a policy for completeness and returns human-readable
// issues. An empty result means the policy is usable.
func Validate(p *RoutingPolicy) []string {
	var issues []string

	if missing := missingTaskKeys(p.TaskProviderMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing task provider mappings: %v", missing))
	}
	if missing := missingTaskKeys(p.TaskRuntimeMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing task runtime mappings: %v", missing))
	}
	if missing := missingPrivacyKeys(p.PrivacyProviderMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing privacy provider mappings: %v", missing))
	}
	if missing := missingPrivacyKeys(p.PrivacyRuntimeMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing privacy runtime mappings: %v", missing))
	}
	if missing := missingPerformanceKeys(p.PerformanceProviderMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing performance provider mappings: %v", missing))
	}
	if missing := missingPerformanceKeys(p.PerformanceRuntimeMap); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Missing performance runtime mappings: %v", missing))
	}

	total := p.PrivacyWeight + p.PerformanceWeight + p.CostWeight + p.AvailabilityWeight
	if math.Abs(total-1.0) > 0.01 {
		issues = append(issues, fmt.Sprintf("Policy weights sum to %.2f, should sum to 1.0", total))
	}

	if len(p.FallbackProviders) == 0 {
		issues = append(issues, "No fallback providers specified")
	}
	if len(p.FallbackRuntimes) == 0 {
		issues = append(issues, "No fallback runtimes specified")
	}

	return issues
}

func missingTaskKeys(m map[types.TaskType]string) []string {
	var missing []string
	for _, task := range types.AllTaskTypes {
		if _, ok := m[task]; !ok {
			missing = append(missing, string(task))
		}
	}
	return missing
}

func missingPrivacyKeys(m map[types.PrivacyLevel][]string) []string {
	var missing []string
	for _, level := range types.AllPrivacyLevels {
		if _, ok := m[level]; !ok {
			missing = append(missing, string(level))
		}
	}
	return missing
}

func missingPerformanceKeys(m map[types.PerformanceRequirement]string) []string {
	var missing []string
	for _, req := range types.AllPerformanceRequirements {
		if _, ok := m[req]; !ok {
			missing = append(missing, string(req))
		}
	}
	return missing
}
