package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // the config field path, e.g. "lock.timeout"
	Value   any    // the invalid value
	Message string // human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
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

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "root",
			Value:   c.Root,
			Message: "must not be empty",
		})
	}

	if c.Lock.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout",
			Value:   c.Lock.Timeout,
			Message: "must be positive",
		})
	}
	if c.Lock.RetryInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.retry_interval",
			Value:   c.Lock.RetryInterval,
			Message: "must be positive",
		})
	} else if c.Lock.Timeout > 0 && c.Lock.RetryInterval > c.Lock.Timeout {
		errors = append(errors, ValidationError{
			Field:   "lock.retry_interval",
			Value:   c.Lock.RetryInterval,
			Message: "must not exceed lock.timeout",
		})
	}

	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Log.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "log.max_size_mb",
			Value:   c.Log.MaxSizeMB,
			Message: "must not be negative",
		})
	}
	if c.Log.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "log.max_backups",
			Value:   c.Log.MaxBackups,
			Message: "must not be negative",
		})
	}

	if c.Events.InlineTail < 0 {
		errors = append(errors, ValidationError{
			Field:   "events.inline_tail",
			Value:   c.Events.InlineTail,
			Message: "must not be negative",
		})
	}

	for field, d := range map[string]time.Duration{
		"ttl.development": c.TTL.Development,
		"ttl.leadership":  c.TTL.Leadership,
		"ttl.sprint":      c.TTL.Sprint,
		"ttl.config":      c.TTL.Config,
		"ttl.emergency":   c.TTL.Emergency,
	} {
		if d < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   d,
				Message: "must not be negative",
			})
		}
	}

	return errors
}
