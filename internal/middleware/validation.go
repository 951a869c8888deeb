package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/sirupsen/logrus"
)

// ValidationMiddleware validates incoming requests against the OpenAPI
// specification before they reach a handler.
type ValidationMiddleware struct {
	router  routers.Router
	logger  *logrus.Logger
	enabled bool
	strict  bool
}

// ValidationConfig configures the validation middleware. In strict mode,
// requests for routes the specification does not document are rejected;
// otherwise they pass through untouched (metrics and docs live outside the
// spec).
type ValidationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SpecPath   string `yaml:"spec_path"`
	StrictMode bool   `yaml:"strict_mode"`
}

// NewValidationMiddleware creates a new validation middleware
func NewValidationMiddleware(config *ValidationConfig, logger *logrus.Logger) (*ValidationMiddleware, error) {
	if config == nil {
		config = &ValidationConfig{
			Enabled:  false,
			SpecPath: "docs/openapi.yaml",
		}
	}

	vm := &ValidationMiddleware{
		logger:  logger,
		enabled: config.Enabled,
		strict:  config.StrictMode,
	}

	if !config.Enabled {
		logger.Info("API validation middleware disabled")
		return vm, nil
	}

	if err := vm.loadOpenAPISpec(config.SpecPath); err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}

	logger.WithField("spec_path", config.SpecPath).Info("API validation middleware enabled")
	return vm, nil
}

// loadOpenAPISpec loads and parses the OpenAPI specification
func (vm *ValidationMiddleware) loadOpenAPISpec(specPath string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	// Try the path as given, then from the repository root. The fallback
	// covers package-relative working directories.
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		rootPath := filepath.Join("..", "..", specPath)
		doc, err = loader.LoadFromFile(rootPath)
		if err != nil {
			return fmt.Errorf("failed to load OpenAPI spec from %s or %s: %w", specPath, rootPath, err)
		}
	}

	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return fmt.Errorf("failed to create OpenAPI router: %w", err)
	}

	vm.router = router
	return nil
}

// Middleware returns the HTTP middleware function
func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	if !vm.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := vm.validateRequest(r); err != nil {
			vm.logger.WithError(err).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Warn("Request validation failed")

			vm.writeValidationError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errUndocumentedRoute = errors.New("route is not documented in the OpenAPI spec")

// validateRequest validates an HTTP request against the OpenAPI spec
func (vm *ValidationMiddleware) validateRequest(r *http.Request) error {
	route, pathParams, err := vm.router.FindRoute(r)
	if err != nil {
		if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
			if vm.strict {
				return errUndocumentedRoute
			}
			return nil
		}
		return fmt.Errorf("route lookup failed: %w", err)
	}

	// Read and restore the body so downstream handlers see it intact
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
	}

	if len(body) > 0 {
		input.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}

	return nil
}

// writeValidationError writes a validation error response
func (vm *ValidationMiddleware) writeValidationError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	detail := parseValidationError(err)

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"message": detail.Message,
			"type":    "validation_error",
			"code":    http.StatusBadRequest,
			"details": detail.Details,
		},
		"timestamp": time.Now().Unix(),
	}

	json.NewEncoder(w).Encode(response)
}

// ValidationErrorDetail contains parsed validation error information
type ValidationErrorDetail struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// parseValidationError maps kin-openapi's error text onto a stable message
// plus detail fields.
func parseValidationError(err error) *ValidationErrorDetail {
	errorStr := err.Error()

	detail := &ValidationErrorDetail{
		Message: "Request validation failed",
		Details: make(map[string]interface{}),
	}

	switch {
	case errors.Is(err, errUndocumentedRoute):
		detail.Message = "Route is not documented"
	case strings.Contains(errorStr, "request body"):
		detail.Message = "Invalid request body format"
		detail.Details["error"] = errorStr
	case strings.Contains(errorStr, "required"):
		detail.Message = "Missing required field"
		detail.Details["error"] = errorStr
	case strings.Contains(errorStr, "type"):
		detail.Message = "Invalid field type"
		detail.Details["error"] = errorStr
	case strings.Contains(errorStr, "enum"):
		detail.Message = "Invalid enum value"
		detail.Details["error"] = errorStr
	default:
		detail.Message = errorStr
	}

	return detail
}
