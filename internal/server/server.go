package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/engine"
	"github.com/tributary-ai/routing-engine/internal/middleware"
	"github.com/tributary-ai/routing-engine/internal/policy"
	"github.com/tributary-ai/routing-engine/internal/profiles"
	"github.com/tributary-ai/routing-engine/internal/registry"
	"github.com/tributary-ai/routing-engine/internal/routing"
)

// Server exposes the routing engine over HTTP.
type Server struct {
	engine       *engine.Engine
	capabilities *routing.CapabilityRouter
	policies     *policy.Manager
	profiles     *profiles.Manager
	registry     *registry.Registry

	httpServer *http.Server
	validator  *middleware.ValidationMiddleware
	logger     *logrus.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string                       `yaml:"port"`
	ReadTimeout    time.Duration                `yaml:"read_timeout"`
	WriteTimeout   time.Duration                `yaml:"write_timeout"`
	MaxHeaderBytes int                          `yaml:"max_header_bytes"`
	Validation     *middleware.ValidationConfig `yaml:"validation"`
}

// Dependencies are the components the HTTP surface fronts.
type Dependencies struct {
	Engine       *engine.Engine
	Capabilities *routing.CapabilityRouter
	Policies     *policy.Manager
	Profiles     *profiles.Manager
	Registry     *registry.Registry
}

// NewServer creates a new server instance
func NewServer(deps Dependencies, config *ServerConfig, logger *logrus.Logger) (*Server, error) {
	if deps.Engine == nil || deps.Registry == nil {
		return nil, fmt.Errorf("server requires an engine and a registry")
	}

	server := &Server{
		engine:       deps.Engine,
		capabilities: deps.Capabilities,
		policies:     deps.Policies,
		profiles:     deps.Profiles,
		registry:     deps.Registry,
		logger:       logger,
		config:       config,
	}

	validator, err := middleware.NewValidationMiddleware(config.Validation, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize validation middleware: %w", err)
	}
	server.validator = validator

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting routing engine server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping routing engine server")

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)
	r.Use(s.validator.Middleware)

	// API routes
	api := r.PathPrefix("/v1").Subrouter()

	// Routing
	api.HandleFunc("/route", s.handleRoute).Methods("POST")
	api.HandleFunc("/route/dry-run", s.handleDryRun).Methods("POST")
	api.HandleFunc("/outcomes", s.handleOutcome).Methods("POST")

	// Stats and policy management
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/reset", s.handleStatsReset).Methods("POST")
	api.HandleFunc("/policies", s.handleListPolicies).Methods("GET")
	api.HandleFunc("/policy", s.handleActivePolicy).Methods("GET")
	api.HandleFunc("/policy", s.handleUpdatePolicy).Methods("PUT")

	// Component inventory and health
	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{name}", s.handleGetProvider).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/health/{component}", s.handleComponentHealth).Methods("GET")

	// Capability-aware routing
	api.HandleFunc("/capabilities", s.handleCapabilities).Methods("GET")
	api.HandleFunc("/capabilities/route", s.handleCapabilityRoute).Methods("POST")
	api.HandleFunc("/capabilities/check", s.handleCapabilityCheck).Methods("POST")

	// Profiles
	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles/active", s.handleSetActiveProfile).Methods("PUT")
	api.HandleFunc("/profiles/decision", s.handleProfileDecision).Methods("POST")

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API documentation
	s.setupSwaggerRoutes(r)

	// Health check endpoint (no /v1 prefix)
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"user_agent":  r.UserAgent(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "api_error",
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	}

	s.writeJSON(w, statusCode, errorResp)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
