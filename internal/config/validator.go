package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/orchid-dev/orchid/internal/task"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "monitor.check_interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidSinkKinds returns the list of valid sink kinds
func ValidSinkKinds() []string {
	return []string{"log", "file"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Monitor.CheckIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.check_interval_seconds",
			Value:   c.Monitor.CheckIntervalSeconds,
			Message: "must be positive",
		})
	}

	if c.Sandbox.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sandbox.timeout_seconds",
			Value:   c.Sandbox.TimeoutSeconds,
			Message: "must not be negative",
		})
	}

	for i, route := range c.Agents {
		if !task.Type(route.Type).Valid() {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("agents[%d].type", i),
				Value:   route.Type,
				Message: "unknown task type",
			})
		}
		if _, err := url.ParseRequestURI(route.Endpoint); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("agents[%d].endpoint", i),
				Value:   route.Endpoint,
				Message: "must be a valid URL",
			})
		}
	}

	for i, route := range c.Sinks {
		if _, err := glob.Compile(route.Pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sinks[%d].pattern", i),
				Value:   route.Pattern,
				Message: "must be a valid glob pattern",
			})
		}
		if !slices.Contains(ValidSinkKinds(), route.Kind) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sinks[%d].kind", i),
				Value:   route.Kind,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSinkKinds(), ", ")),
			})
		}
		if route.Kind == "file" && route.Path == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sinks[%d].path", i),
				Value:   route.Path,
				Message: "required for the file kind",
			})
		}
	}

	return errors
}
