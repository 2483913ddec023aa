package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Broker modes.
const (
	BrokerModeChannel = "channel"
	BrokerModeRedis   = "redis"
)

// Config holds all configuration for the notify service.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	BrokerMode  string `json:"broker_mode"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	JWTSecret   string `json:"-"`

	QueueBuffer   int `json:"queue_buffer"`
	HubSendBuffer int `json:"hub_send_buffer"`

	RetryMaxAttempts     int           `json:"retry_max_attempts"`
	RetryInitialDelay    time.Duration `json:"-"`
	RetryInitialDelayStr string        `json:"retry_initial_delay"`
	RetryStep            time.Duration `json:"-"`
	RetryStepStr         string        `json:"retry_step"`
	RetryMaxDelay        time.Duration `json:"-"`
	RetryMaxDelayStr     string        `json:"retry_max_delay"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`
	DBMaxOpenConns int           `json:"db_max_open_conns"`
	DBMaxIdleConns int           `json:"db_max_idle_conns"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// Dead-letter persistence requires DATABASE_URL; without it the sink
	// only logs and the janitor stays off.
	DeadLetterRetention     time.Duration `json:"-"`
	DeadLetterRetentionStr  string        `json:"dead_letter_retention"`
	DeadLetterSweepSchedule string        `json:"dead_letter_sweep_schedule"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		BrokerMode:              os.Getenv("BROKER_MODE"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		HTTPAddr:                os.Getenv("HTTP_ADDR"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		RetryInitialDelayStr:    os.Getenv("RETRY_INITIAL_DELAY"),
		RetryStepStr:            os.Getenv("RETRY_STEP"),
		RetryMaxDelayStr:        os.Getenv("RETRY_MAX_DELAY"),
		DBOpTimeoutStr:          os.Getenv("DB_OP_TIMEOUT"),
		HTTPShutdownTimeoutStr:  os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:          os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:             os.Getenv("METRICS_PATH"),
		MetricsPort:             os.Getenv("METRICS_PORT"),
		DeadLetterRetentionStr:  os.Getenv("DEAD_LETTER_RETENTION"),
		DeadLetterSweepSchedule: os.Getenv("DEAD_LETTER_SWEEP_SCHEDULE"),
	}

	if cfg.BrokerMode == "" {
		cfg.BrokerMode = BrokerModeChannel
	}

	if bufStr := os.Getenv("QUEUE_BUFFER"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.QueueBuffer = n
		} else {
			log.Printf("config: invalid QUEUE_BUFFER %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.QueueBuffer == 0 {
		cfg.QueueBuffer = 100
	}

	if bufStr := os.Getenv("HUB_SEND_BUFFER"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.HubSendBuffer = n
		} else {
			log.Printf("config: invalid HUB_SEND_BUFFER %q (must be a positive integer), using default 32", bufStr)
		}
	}
	if cfg.HubSendBuffer == 0 {
		cfg.HubSendBuffer = 32
	}

	if attemptsStr := os.Getenv("RETRY_MAX_ATTEMPTS"); attemptsStr != "" {
		if n, err := parseInt(attemptsStr); err == nil && n > 0 {
			cfg.RetryMaxAttempts = n
		} else {
			log.Printf("config: invalid RETRY_MAX_ATTEMPTS %q (must be a positive integer), using default 3", attemptsStr)
		}
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Some hosting platforms inject PORT instead of a full listen address.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.RetryInitialDelayStr == "" {
		cfg.RetryInitialDelayStr = "2s"
	}
	if cfg.RetryStepStr == "" {
		cfg.RetryStepStr = "2s"
	}
	if cfg.RetryMaxDelayStr == "" {
		cfg.RetryMaxDelayStr = "30s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.DeadLetterRetentionStr == "" {
		cfg.DeadLetterRetentionStr = "168h"
	}
	if cfg.DeadLetterSweepSchedule == "" {
		cfg.DeadLetterSweepSchedule = "0 * * * *"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.RetryInitialDelayStr); err == nil {
		cfg.RetryInitialDelay = d
	}
	if d, err := time.ParseDuration(cfg.RetryStepStr); err == nil {
		cfg.RetryStep = d
	}
	if d, err := time.ParseDuration(cfg.RetryMaxDelayStr); err == nil {
		cfg.RetryMaxDelay = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DeadLetterRetentionStr); err == nil {
		cfg.DeadLetterRetention = d
	}

	return cfg
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		BrokerMode              string `json:"broker_mode"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		DatabaseURL             string `json:"database_url,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		JWTSecret               string `json:"jwt_secret"`
		QueueBuffer             int    `json:"queue_buffer"`
		HubSendBuffer           int    `json:"hub_send_buffer"`
		RetryMaxAttempts        int    `json:"retry_max_attempts"`
		RetryInitialDelay       string `json:"retry_initial_delay"`
		RetryStep               string `json:"retry_step"`
		RetryMaxDelay           string `json:"retry_max_delay"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		DeadLetterRetention     string `json:"dead_letter_retention"`
		DeadLetterSweepSchedule string `json:"dead_letter_sweep_schedule"`
	}{
		BrokerMode:              c.BrokerMode,
		RedisAddr:               c.RedisAddr,
		DatabaseURL:             maskSecret(c.DatabaseURL),
		HTTPAddr:                c.HTTPAddr,
		JWTSecret:               maskSecret(c.JWTSecret),
		QueueBuffer:             c.QueueBuffer,
		HubSendBuffer:           c.HubSendBuffer,
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialDelay:       c.RetryInitialDelayStr,
		RetryStep:               c.RetryStepStr,
		RetryMaxDelay:           c.RetryMaxDelayStr,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		DeadLetterRetention:     c.DeadLetterRetentionStr,
		DeadLetterSweepSchedule: c.DeadLetterSweepSchedule,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
