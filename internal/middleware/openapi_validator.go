package middleware

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
)

//go:embed openapi.yaml
var sessionAPISpec []byte

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// Spec is the OpenAPI document; the embedded session API when empty.
	Spec []byte
	// ValidateRequests enables request validation
	ValidateRequests bool
	// ValidateResponses enables response validation (impacts performance)
	ValidateResponses bool
	// PathPrefixes limits validation to matching paths.
	PathPrefixes []string
}

// DefaultOpenAPIValidatorConfig validates session API requests when enabled.
func DefaultOpenAPIValidatorConfig(enabled bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           enabled,
		ValidateRequests:  true,
		ValidateResponses: false,
		PathPrefixes:      []string{"/session"},
	}
}

// LoadSessionAPISpec parses and validates an OpenAPI document.
func LoadSessionAPISpec(data []byte) (*openapi3.T, error) {
	if len(data) == 0 {
		data = sessionAPISpec
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// OpenAPIValidator creates a middleware that validates HTTP requests and responses
// against an OpenAPI 3.0 specification
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	noop := func(next http.Handler) http.Handler { return next }
	if config == nil {
		config = DefaultOpenAPIValidatorConfig(true)
	}
	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return noop
	}

	doc, err := LoadSessionAPISpec(config.Spec)
	if err != nil {
		slog.Error("OpenAPI validation unavailable", slog.String("error", err.Error()))
		return noop
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		slog.Error("failed to create OpenAPI router", slog.String("error", err.Error()))
		return noop
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses))

	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasPrefix(r.URL.Path, config.PathPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				// Unknown routes are left to the router's 404/405 handling.
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
					observability.FromContext(r.Context()).Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					WriteError(w, requestValidationError(err))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)
			validateResponse(r, input, route, recorder, options)
		})
	}
}

// validateResponse logs responses that break the contract; the body has
// already been sent.
func validateResponse(r *http.Request, input *openapi3filter.RequestValidationInput, route *routers.Route, rec *responseRecorder, options *openapi3filter.Options) {
	err := openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 rec.statusCode,
		Header:                 rec.Header(),
		Body:                   io.NopCloser(bytes.NewReader(rec.body.Bytes())),
		Options:                options,
	})
	if err != nil {
		observability.FromContext(r.Context()).Warn("response validation failed",
			slog.String("operation", route.Operation.OperationID),
			slog.Int("status", rec.statusCode),
			slog.String("error", err.Error()))
	}
}

// requestValidationError turns a schema violation into a 422 with the
// offending field, and anything else into a 400.
func requestValidationError(err error) *domain.APIError {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			field = "body"
		}
		reason := schemaErr.Reason
		if reason == "" {
			reason = "is invalid"
		}
		apiErr := domain.NewAPIError(http.StatusUnprocessableEntity, "The given data was invalid.")
		apiErr.FieldErrors = map[string][]string{field: {reason}}
		apiErr.Cause = err
		return apiErr
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		apiErr := domain.NewAPIError(http.StatusBadRequest, reqErr.Error())
		apiErr.Cause = err
		return apiErr
	}
	return domain.NewAPIError(http.StatusBadRequest, err.Error())
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
