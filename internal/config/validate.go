package config

import (
	"errors"
	"fmt"
	"strings"
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	// Validate environment
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[cfg.Env] {
		errs = append(errs, ValidationError{
			Field:   "env",
			Message: "must be one of: development, staging, production, test",
		})
	}

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateRabbitMQ(&cfg.RabbitMQ)...)
	errs = append(errs, validateRedis(&cfg.Redis)...)
	errs = append(errs, validateInbox(&cfg.Inbox)...)

	if cfg.Parser.PointValue <= 0 {
		errs = append(errs, ValidationError{
			Field:   "parser.point_value",
			Message: "must be greater than 0",
		})
	}

	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return ValidationErrors{{Field: field, Message: "must be a valid duration (e.g. 30s, 5m)"}}
	}
	return nil
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.http_port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if s.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_bytes",
			Message: "must be greater than 0",
		})
	}

	errs = append(errs, validateDuration("server.read_timeout", s.ReadTimeout)...)
	errs = append(errs, validateDuration("server.write_timeout", s.WriteTimeout)...)
	errs = append(errs, validateDuration("server.shutdown_timeout", s.ShutdownTimeout)...)

	return errs
}

func validateDatabase(db *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if db.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "database.host",
			Message: "is required",
		})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "database.port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if db.User == "" {
		errs = append(errs, ValidationError{
			Field:   "database.user",
			Message: "is required",
		})
	}
	if db.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "database.name",
			Message: "is required",
		})
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[db.SSLMode] {
		errs = append(errs, ValidationError{
			Field:   "database.sslmode",
			Message: "must be one of: disable, require, verify-ca, verify-full",
		})
	}

	if db.MaxConnections <= 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_connections",
			Message: "must be greater than 0",
		})
	}
	if db.MaxIdleConnections < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "must be non-negative",
		})
	}
	if db.MaxIdleConnections > db.MaxConnections {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "must not exceed max_connections",
		})
	}

	errs = append(errs, validateDuration("database.conn_max_lifetime", db.ConnMaxLifetime)...)

	return errs
}

func validateRabbitMQ(mq *RabbitMQConfig) ValidationErrors {
	var errs ValidationErrors

	// Messaging is optional.
	if mq.URL == "" {
		return nil
	}

	if !strings.HasPrefix(mq.URL, "amqp://") && !strings.HasPrefix(mq.URL, "amqps://") {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.url",
			Message: "must start with amqp:// or amqps://",
		})
	}

	if mq.Exchange == "" {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.exchange",
			Message: "is required",
		})
	}

	if mq.PrefetchCount <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.prefetch_count",
			Message: "must be greater than 0",
		})
	}

	errs = append(errs, validateDuration("rabbitmq.reconnect_delay", mq.ReconnectDelay)...)
	errs = append(errs, validateDuration("rabbitmq.max_reconnect_wait", mq.MaxReconnectWait)...)

	return errs
}

func validateRedis(r *RedisConfig) ValidationErrors {
	var errs ValidationErrors

	if r.Addr == "" {
		return nil
	}
	if r.DB < 0 {
		errs = append(errs, ValidationError{
			Field:   "redis.db",
			Message: "must be non-negative",
		})
	}
	errs = append(errs, validateDuration("redis.ttl", r.TTL)...)

	return errs
}

func validateInbox(i *InboxConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return nil
	}

	if i.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "inbox.dir",
			Message: "is required when the inbox is enabled",
		})
	}
	if i.Workers <= 0 || i.Workers > 64 {
		errs = append(errs, ValidationError{
			Field:   "inbox.workers",
			Message: "must be between 1 and 64",
		})
	}
	if i.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "inbox.max_retries",
			Message: "must be non-negative",
		})
	}
	if i.SweepSchedule != "" {
		if _, err := cron.ParseStandard(i.SweepSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "inbox.sweep_schedule",
				Message: "must be a valid cron expression: " + err.Error(),
			})
		}
	}
	errs = append(errs, validateDuration("inbox.retry_delay", i.RetryDelay)...)

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[l.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
