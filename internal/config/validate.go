package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// JWT_SECRET is required; the hub cannot authenticate without it
	if cfg.JWTSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "JWT_SECRET",
			Message: "required",
		})
	}

	// BROKER_MODE must be "channel" or "redis"
	if cfg.BrokerMode != BrokerModeChannel && cfg.BrokerMode != BrokerModeRedis {
		errs = append(errs, ValidationError{
			Field:   "BROKER_MODE",
			Message: fmt.Sprintf("must be 'channel' or 'redis', got %q", cfg.BrokerMode),
		})
	}

	// redis mode needs an address to connect to
	if cfg.BrokerMode == BrokerModeRedis && cfg.RedisAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "REDIS_ADDR",
			Message: "required when BROKER_MODE is 'redis'",
		})
	}

	durations := []struct {
		field string
		value string
	}{
		{"RETRY_INITIAL_DELAY", cfg.RetryInitialDelayStr},
		{"RETRY_STEP", cfg.RetryStepStr},
		{"RETRY_MAX_DELAY", cfg.RetryMaxDelayStr},
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"DEAD_LETTER_RETENTION", cfg.DeadLetterRetentionStr},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if parsed <= 0 {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: "must be positive",
			})
		}
	}

	if cfg.RetryMaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "RETRY_MAX_ATTEMPTS",
			Message: "must be at least 1",
		})
	}

	// DEAD_LETTER_SWEEP_SCHEDULE must parse as a standard cron expression
	if _, err := cron.ParseStandard(cfg.DeadLetterSweepSchedule); err != nil {
		errs = append(errs, ValidationError{
			Field:   "DEAD_LETTER_SWEEP_SCHEDULE",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
