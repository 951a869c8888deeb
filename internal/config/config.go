package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/registry"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Engine    engine.Config    `yaml:"engine"`
	Registry  RegistryConfig   `yaml:"registry"`
	Isolation isolation.Config `yaml:"isolation"`
	Policies  PoliciesConfig   `yaml:"policies"`
	Profiles  ProfilesConfig   `yaml:"profiles"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string           `yaml:"port"`
	ReadTimeout    time.Duration    `yaml:"read_timeout"`
	WriteTimeout   time.Duration    `yaml:"write_timeout"`
	MaxHeaderBytes int              `yaml:"max_header_bytes"`
	Validation     ValidationConfig `yaml:"validation"`
}

// ValidationConfig controls OpenAPI request validation. StrictMode rejects
// requests to routes the spec does not document.
type ValidationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SpecPath   string `yaml:"spec_path"`
	StrictMode bool   `yaml:"strict_mode"`
}

// RegistryConfig holds the health monitor settings and per-provider probe
// wiring. Providers without an entry here are still registered; the monitor
// simply has no probe for them and marks them healthy on each sweep.
type RegistryConfig struct {
	Monitor           registry.MonitorConfig    `yaml:"monitor"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
	DisabledProviders []string                  `yaml:"disabled_providers"`
}

// ProviderConfig describes how to reach one provider for health probing.
// Probe selects the probe family: "openai" for any OpenAI-compatible
// endpoint, "anthropic" for the Anthropic messages API, or empty for none.
type ProviderConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Probe    string `yaml:"probe"`
	Model    string `yaml:"model"`
}

// PoliciesConfig holds routing policy configuration. Dir points at a
// directory of policy YAML files layered over the built-ins; Active names
// the policy selected at startup.
type PoliciesConfig struct {
	Dir    string `yaml:"dir"`
	Active string `yaml:"active"`
}

// ProfilesConfig holds application profile configuration. An empty path
// runs the profile store in memory with the default profile only.
type ProfilesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	// Set defaults
	config.setDefaults()

	// Load from file if provided
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	// Server defaults
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		Validation: ValidationConfig{
			Enabled:  false,
			SpecPath: "docs/openapi.yaml",
		},
	}

	// Engine defaults
	c.Engine = engine.Config{
		EnableDegradedMode: true,
	}

	// Registry defaults: probe the hosted APIs that answer cheap requests.
	// deepseek, gemini, and local ollama all expose OpenAI-compatible model
	// listings, so they share the openai probe with an endpoint override.
	c.Registry = RegistryConfig{
		Monitor: registry.MonitorConfig{
			Interval: time.Minute,
			Timeout:  10 * time.Second,
		},
		Providers: map[string]ProviderConfig{
			"openai":    {Probe: "openai"},
			"anthropic": {Probe: "anthropic"},
			"deepseek":  {Probe: "openai", Endpoint: "https://api.deepseek.com/v1"},
			"gemini":    {Probe: "openai", Endpoint: "https://generativelanguage.googleapis.com/v1beta/openai/"},
			"local":     {Probe: "openai", Endpoint: "http://localhost:11434/v1"},
		},
	}

	// Isolation defaults
	c.Isolation = isolation.Config{
		FailureThreshold:      5,
		IsolationDuration:     5 * time.Minute,
		RecoveryCheckInterval: time.Minute,
	}

	// Policy defaults
	c.Policies = PoliciesConfig{
		Active: "balanced",
	}

	// Logging defaults
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	// Server configuration
	if port := os.Getenv("LLM_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	// Provider API keys
	c.setProviderKey("openai", os.Getenv("OPENAI_API_KEY"))
	c.setProviderKey("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	c.setProviderKey("deepseek", os.Getenv("DEEPSEEK_API_KEY"))
	c.setProviderKey("gemini", os.Getenv("GEMINI_API_KEY"))

	// Logging configuration
	if level := os.Getenv("LLM_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("LLM_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// Active routing policy
	if policy := os.Getenv("LLM_ROUTER_POLICY"); policy != "" {
		c.Policies.Active = policy
	}
}

func (c *Config) setProviderKey(provider, key string) {
	if key == "" {
		return
	}
	if c.Registry.Providers == nil {
		c.Registry.Providers = make(map[string]ProviderConfig)
	}
	entry := c.Registry.Providers[provider]
	entry.APIKey = key
	c.Registry.Providers[provider] = entry
}

// validate validates the configuration
func (c *Config) validate() error {
	// Validate server port
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Server.Validation.Enabled && c.Server.Validation.SpecPath == "" {
		return fmt.Errorf("validation spec path cannot be empty when validation is enabled")
	}

	// Validate logging level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate logging format
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate probe families
	validProbes := map[string]bool{
		"":          true,
		"openai":    true,
		"anthropic": true,
	}

	for provider, entry := range c.Registry.Providers {
		if !validProbes[entry.Probe] {
			return fmt.Errorf("invalid probe %q for provider %s", entry.Probe, provider)
		}
	}

	// Validate monitor timings
	if c.Registry.Monitor.Interval < 0 {
		return fmt.Errorf("monitor interval cannot be negative")
	}
	if c.Registry.Monitor.Timeout < 0 {
		return fmt.Errorf("monitor timeout cannot be negative")
	}

	// Validate isolation thresholds
	if c.Isolation.FailureThreshold < 0 {
		return fmt.Errorf("isolation failure threshold cannot be negative")
	}
	if c.Isolation.IsolationDuration < 0 {
		return fmt.Errorf("isolation duration cannot be negative")
	}

	// Validate active policy name
	if c.Policies.Active == "" {
		return fmt.Errorf("active policy cannot be empty")
	}

	return nil
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ProbedProviders returns the names of providers with enough configuration
// to register a health probe: a probe family plus either an API key or, for
// OpenAI-compatible endpoints, an explicit endpoint that may be keyless.
func (c *Config) ProbedProviders() []string {
	var providers []string

	for name, entry := range c.Registry.Providers {
		if entry.Probe == "" {
			continue
		}
		if entry.APIKey == "" && !(entry.Probe == "openai" && entry.Endpoint != "") {
			continue
		}
		providers = append(providers, name)
	}

	sort.Strings(providers)
	return providers
}
