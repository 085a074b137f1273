package config

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "poll.max_attempts")
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

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validatePoll()...)
	errors = append(errors, c.validateAutosave()...)
	errors = append(errors, c.validateProgress()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	if c.API.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must not be empty",
		})
	} else if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must be a valid URL",
		})
	}

	if c.API.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "api.timeout_seconds",
			Value:   c.API.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.CheckIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.check_interval_seconds",
			Value:   c.Session.CheckIntervalSeconds,
			Message: "must be positive",
		})
	}
	if c.Session.WarningThresholdSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.warning_threshold_seconds",
			Value:   c.Session.WarningThresholdSeconds,
			Message: "must be positive",
		})
	}
	if c.Session.CountdownTickSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.countdown_tick_seconds",
			Value:   c.Session.CountdownTickSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validatePoll() []ValidationError {
	var errors []ValidationError

	if c.Poll.IntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "poll.interval_seconds",
			Value:   c.Poll.IntervalSeconds,
			Message: "must be positive",
		})
	}
	if c.Poll.MaxAttempts <= 0 {
		errors = append(errors, ValidationError{
			Field:   "poll.max_attempts",
			Value:   c.Poll.MaxAttempts,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateAutosave() []ValidationError {
	var errors []ValidationError

	if c.Autosave.DebounceMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "autosave.debounce_ms",
			Value:   c.Autosave.DebounceMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateProgress() []ValidationError {
	var errors []ValidationError

	for _, step := range c.Progress.ValidatedSteps {
		if step < 1 || step > 4 {
			errors = append(errors, ValidationError{
				Field:   "progress.validated_steps",
				Value:   step,
				Message: "steps must be in range 1..4",
			})
		}
	}

	for key := range c.Progress.RequiredTasks {
		step, err := strconv.Atoi(key)
		if err != nil || step < 1 || step > 4 {
			errors = append(errors, ValidationError{
				Field:   "progress.required_tasks",
				Value:   key,
				Message: "keys must be steps in range 1..4",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
