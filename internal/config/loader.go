package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file and applies environment variable overrides.
// Variables from a .env file in the working directory are loaded first; they
// never replace variables that are already set.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	// Load from YAML file if exists
	if configPath != "" {
		if err := loadFromYAML(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	envString("ENV", &cfg.Env)

	// Server
	envInt("HTTP_PORT", &cfg.Server.HTTPPort)
	envString("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envString("DB_USER", &cfg.Database.User)
	envString("DB_PASSWORD", &cfg.Database.Password)
	envString("DB_NAME", &cfg.Database.Name)
	envString("DB_SSLMODE", &cfg.Database.SSLMode)
	envInt("DB_MAX_CONNECTIONS", &cfg.Database.MaxConnections)
	envBool("DB_ENSURE_SCHEMA", &cfg.Database.EnsureSchema)

	// RabbitMQ
	envString("RABBITMQ_URL", &cfg.RabbitMQ.URL)
	envString("RABBITMQ_EXCHANGE", &cfg.RabbitMQ.Exchange)
	envString("RABBITMQ_SUBMIT_QUEUE", &cfg.RabbitMQ.SubmitQueue)

	// Redis
	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envString("REDIS_TTL", &cfg.Redis.TTL)

	// Inbox
	envBool("INBOX_ENABLED", &cfg.Inbox.Enabled)
	envString("INBOX_DIR", &cfg.Inbox.Dir)
	envInt("INBOX_WORKERS", &cfg.Inbox.Workers)
	envString("INBOX_SWEEP_SCHEDULE", &cfg.Inbox.SweepSchedule)

	// Parser
	if v := os.Getenv("POINT_VALUE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Parser.PointValue = f
		}
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
}

// MustLoad loads configuration and panics on error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
