package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/config"
	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/middleware"
	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/profiles"
	"github.com/tributary-ai/routing-engine/internal/registry"
	"github.com/tributary-ai/routing-engine/internal/routing"
	"github.com/tributary-ai/routing-engine/internal/scoring"
	"github.com/tributary-ai/routing-engine/internal/server"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	registry *registry.Registry
	monitor  *registry.Monitor
	tracker  *isolation.Tracker
	profiles *profiles.Store
	server   *server.Server
	logger   *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	// Build the provider registry
	reg := registry.New(logger)
	registry.SeedDefaults(reg)
	for _, name := range cfg.Registry.DisabledProviders {
		if !reg.DisableProvider(name) {
			logger.WithField("provider", name).Warn("Cannot disable unknown provider")
		}
	}

	// Failure isolation feeds off routing outcomes and probe results
	tracker := isolation.NewTracker(&cfg.Isolation, reg, logger)

	// Health monitor with probes for the providers we have credentials for
	monitor := registry.NewMonitor(reg, cfg.Registry.Monitor, tracker, logger)
	registerProbes(monitor, cfg, logger)

	// Application profiles, optionally hot-reloaded from disk
	store, err := profiles.NewStore(cfg.Profiles.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := store.Watch(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to watch profiles: %w", err)
	}
	profMgr := profiles.NewManager(store, reg, logger)

	// Routing policies layered over the built-ins
	policies := policy.NewManager(cfg.Policies.Dir, logger)
	if err := policies.SetActive(cfg.Policies.Active); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to activate policy: %w", err)
	}

	scorer := scoring.NewScorer(reg, logger)
	capRouter := routing.NewCapabilityRouter(reg, tracker, profMgr, logger)
	eng := engine.New(reg, capRouter, scorer, policies, tracker, cfg.Engine, logger)

	// Create server
	serverInstance, err := server.NewServer(server.Dependencies{
		Engine:       eng,
		Capabilities: capRouter,
		Policies:     policies,
		Profiles:     profMgr,
		Registry:     reg,
	}, &server.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		Validation: &middleware.ValidationConfig{
			Enabled:    cfg.Server.Validation.Enabled,
			SpecPath:   cfg.Server.Validation.SpecPath,
			StrictMode: cfg.Server.Validation.StrictMode,
		},
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Application{
		config:   cfg,
		registry: reg,
		monitor:  monitor,
		tracker:  tracker,
		profiles: store,
		server:   serverInstance,
		logger:   logger,
	}, nil
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting Routing Engine")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background health sweeps
	app.monitor.Start()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		app.shutdownBackground()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	// Graceful shutdown
	app.logger.Info("Starting graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	// Shutdown server first so in-flight requests still see live components
	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		app.shutdownBackground()
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.shutdownBackground()
	app.logger.Info("Graceful shutdown completed")
	return nil
}

// shutdownBackground stops the health monitor, the isolation recovery loop,
// and the profile watcher.
func (app *Application) shutdownBackground() {
	app.monitor.Stop()
	app.tracker.Stop()
	if err := app.profiles.Close(); err != nil {
		app.logger.WithError(err).Warn("Profile watcher close error")
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	// Set log level
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	// Set log format
	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	// Set output
	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// registerProbes attaches health probes for every provider the configuration
// can reach. Providers without credentials stay registered and are marked
// healthy on each sweep; routing treats them as usable until outcomes say
// otherwise.
func registerProbes(monitor *registry.Monitor, cfg *config.Config, logger *logrus.Logger) {
	disabled := make(map[string]bool, len(cfg.Registry.DisabledProviders))
	for _, name := range cfg.Registry.DisabledProviders {
		disabled[name] = true
	}

	probed := 0
	for _, name := range cfg.ProbedProviders() {
		if disabled[name] {
			continue
		}

		entry := cfg.Registry.Providers[name]
		var probe registry.ProbeFunc
		switch entry.Probe {
		case "openai":
			probe = registry.OpenAIProbe(entry.APIKey, entry.Endpoint)
		case "anthropic":
			probe = registry.AnthropicProbe(entry.APIKey, entry.Endpoint, entry.Model)
		default:
			continue
		}

		monitor.RegisterProbe(name, probe)
		logger.WithFields(logrus.Fields{
			"provider": name,
			"probe":    entry.Probe,
		}).Info("Health probe registered")
		probed++
	}

	logger.WithField("count", probed).Info("Probe registration completed")
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY         OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY      Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  DEEPSEEK_API_KEY       DeepSeek API key\n")
	fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY         Gemini API key\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_PORT        Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_LEVEL   Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_FORMAT  Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_POLICY      Active routing policy\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-xxx LLM_ROUTER_POLICY=cost_optimized %s\n", os.Args[0])
}

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// Show help if requested
	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	// Show version if requested
	if *version {
		fmt.Printf("Routing Engine v1.0.0\n")
		fmt.Printf("Build Date: %s\n", time.Now().Format("2006-01-02"))
		os.Exit(0)
	}

	// Create and run application
	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	// Run application
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
