package policy

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/routing-engine/internal/types"
)

func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewManager_Builtins(t *testing.T) {
	manager := NewManager("", createTestLogger())

	assert.Equal(t, []string{"privacy_first", "performance_first", "cost_optimized", "balanced", "default"}, manager.List())
	assert.Equal(t, "balanced", manager.ActiveName())

	balanced, ok := manager.Get("balanced")
	require.True(t, ok)
	alias, ok := manager.Get("default")
	require.True(t, ok)
	assert.Same(t, balanced, alias)
}

func TestNewManager_BuiltinWeights(t *testing.T) {
	manager := NewManager("", createTestLogger())

	tests := []struct {
		name         string
		privacy      float64
		performance  float64
		cost         float64
		availability float64
	}{
		{"privacy_first", 0.6, 0.2, 0.1, 0.1},
		{"performance_first", 0.1, 0.6, 0.2, 0.1},
		{"cost_optimized", 0.2, 0.2, 0.5, 0.1},
		{"balanced", 0.25, 0.25, 0.25, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := manager.Get(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.privacy, p.PrivacyWeight)
			assert.Equal(t, tt.performance, p.PerformanceWeight)
			assert.Equal(t, tt.cost, p.CostWeight)
			assert.Equal(t, tt.availability, p.AvailabilityWeight)
		})
	}
}

func TestNewManager_BuiltinMappings(t *testing.T) {
	manager := NewManager("", createTestLogger())

	privacyFirst, ok := manager.Get("privacy_first")
	require.True(t, ok)
	assert.Equal(t, "local", privacyFirst.TaskProviderMap[types.TaskChat])
	assert.Equal(t, "huggingface", privacyFirst.TaskProviderMap[types.TaskEmbedding])
	assert.Equal(t, []string{"local"}, privacyFirst.PrivacyProviderMap[types.PrivacyConfidential])

	balanced, ok := manager.Get("balanced")
	require.True(t, ok)
	assert.Equal(t, "deepseek", balanced.TaskProviderMap[types.TaskCode])
	assert.Equal(t, "vllm", balanced.TaskRuntimeMap[types.TaskChat])
	assert.Equal(t, []string{"local", "huggingface"}, balanced.FallbackProviders)
}

func TestNewManager_LoadsCustomPolicies(t *testing.T) {
	dir := t.TempDir()
	custom := `name: research
description: Custom research policy
task_provider_map:
  chat: local
  bogus_task: nowhere
privacy_provider_map:
  public: [local]
privacy_weight: 0.3
performance_weight: 0.3
cost_weight: 0.3
availability_weight: 0.1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "research.yaml"), []byte(custom), 0644))

	unnamed := `task_provider_map:
  code: deepseek
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "team.yaml"), []byte(unnamed), 0644))

	manager := NewManager(dir, createTestLogger())

	research, ok := manager.Get("research")
	require.True(t, ok)
	assert.Equal(t, "local", research.TaskProviderMap[types.TaskChat])
	assert.NotContains(t, research.TaskProviderMap, types.TaskType("bogus_task"))
	assert.Equal(t, 0.3, research.PrivacyWeight)

	// Name falls back to the file stem
	team, ok := manager.Get("team")
	require.True(t, ok)
	assert.Equal(t, "team", team.Name)
	assert.Equal(t, "deepseek", team.TaskProviderMap[types.TaskCode])
}

func TestNewManager_SkipsBrokenPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{not yaml: ["), 0644))

	manager := NewManager(dir, createTestLogger())

	_, ok := manager.Get("broken")
	assert.False(t, ok)
	assert.Equal(t, "balanced", manager.ActiveName())
}

func TestManager_SetActive(t *testing.T) {
	manager := NewManager("", createTestLogger())

	require.NoError(t, manager.SetActive("privacy_first"))
	assert.Equal(t, "privacy_first", manager.ActiveName())
	assert.Equal(t, "privacy_first", manager.Active().Name)

	err := manager.SetActive("nonexistent")
	assert.Error(t, err)
	assert.Equal(t, "privacy_first", manager.ActiveName())
}

func TestManager_SaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir, createTestLogger())

	custom := DefaultPolicy()
	custom.Name = "workbench"
	require.NoError(t, manager.Save(custom))

	path := filepath.Join(dir, "workbench.yaml")
	_, err := os.Stat(path)
	require.NoError(t, err)

	saved, ok := manager.Get("workbench")
	require.True(t, ok)
	assert.Equal(t, "openai", saved.TaskProviderMap[types.TaskChat])

	// Round trip through a fresh manager
	reloaded := NewManager(dir, createTestLogger())
	_, ok = reloaded.Get("workbench")
	assert.True(t, ok)

	deleted, err := manager.Delete("workbench")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	deleted, err = manager.Delete("workbench")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestManager_SaveRejectsBuiltinName(t *testing.T) {
	manager := NewManager(t.TempDir(), createTestLogger())

	p := DefaultPolicy()
	p.Name = "balanced"
	assert.Error(t, manager.Save(p))
}

func TestManager_DeleteProtectsBuiltins(t *testing.T) {
	manager := NewManager(t.TempDir(), createTestLogger())

	for _, name := range BuiltinNames {
		_, err := manager.Delete(name)
		assert.Error(t, err, "builtin %s should be protected", name)
	}
}

func TestManager_DeleteActiveFallsBackToBalanced(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir, createTestLogger())

	custom := DefaultPolicy()
	custom.Name = "ephemeral"
	require.NoError(t, manager.Save(custom))
	require.NoError(t, manager.SetActive("ephemeral"))

	deleted, err := manager.Delete("ephemeral")
	require.NoError(t, err)
	require.True(t, deleted)
	assert.Equal(t, "balanced", manager.ActiveName())
}

func TestValidate_CompletePolicy(t *testing.T) {
	issues := Validate(balancedPolicy())
	assert.Empty(t, issues)

	issues = Validate(DefaultPolicy())
	assert.Empty(t, issues)
}

func TestValidate_ReportsMissingMappings(t *testing.T) {
	p := &RoutingPolicy{
		Name:               "sparse",
		PrivacyWeight:      0.25,
		PerformanceWeight:  0.25,
		CostWeight:         0.25,
		AvailabilityWeight: 0.25,
	}

	issues := Validate(p)
	assert.Len(t, issues, 8)
	assert.Contains(t, issues[0], "Missing task provider mappings")
	assert.Contains(t, issues, "No fallback providers specified")
	assert.Contains(t, issues, "No fallback runtimes specified")
}

func TestValidate_ReportsWeightImbalance(t *testing.T) {
	p := balancedPolicy()
	p.PrivacyWeight = 0.5

	issues := Validate(p)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "should sum to 1.0")
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltin("balanced"))
	assert.True(t, IsBuiltin("default"))
	assert.False(t, IsBuiltin("custom"))
}
