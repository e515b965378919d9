package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{validate: validator.New()}
}

// neo4jSchemes lists the URI schemes understood by the driver.
var neo4jSchemes = map[string]struct{}{
	"bolt": {}, "bolt+s": {}, "bolt+ssc": {},
	"neo4j": {}, "neo4j+s": {}, "neo4j+ssc": {},
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var messages []string
	if err := v.validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return fmt.Errorf("validation error: %w", err)
		}
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
	}

	// Checks that struct tags cannot express.
	if u, err := url.Parse(cfg.Neo4j.URI); cfg.Neo4j.URI != "" && (err != nil || !knownScheme(u.Scheme)) {
		messages = append(messages, fmt.Sprintf("neo4j.uri must use one of the bolt or neo4j schemes (got: %s)", cfg.Neo4j.URI))
	}
	if cfg.Projection.QueryTimeout < 0 {
		messages = append(messages, fmt.Sprintf("projection.query_timeout must not be negative (got: %s)", cfg.Projection.QueryTimeout))
	}
	for label := range cfg.Projection.SearchableProperties {
		if strings.TrimSpace(label) == "" {
			messages = append(messages, "projection.searchable_properties must not contain an empty label")
			break
		}
	}
	if cfg.Metrics.Enabled && cfg.MCP.Enabled && cfg.Metrics.Path == cfg.MCP.Path {
		messages = append(messages, fmt.Sprintf("metrics.path and mcp.path must differ (got: %s)", cfg.MCP.Path))
	}

	if len(messages) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}

func knownScheme(scheme string) bool {
	_, ok := neo4jSchemes[strings.ToLower(scheme)]
	return ok
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", fieldPath, e.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts a validator namespace into the config key.
// Example: "Config.Neo4j.MaxConnectionPoolSize" -> "neo4j.max_connection_pool_size"
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}
	result := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		result = append(result, camelToSnake(part))
	}
	return strings.Join(result, ".")
}

// camelToSnake converts CamelCase to snake_case, keeping acronyms together
// ("FrontendURL" -> "frontend_url", "LTI" -> "lti").
func camelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			prevUpper := runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			if prevLower || (prevUpper && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
