// Package config provides configuration management for the strategy analyser.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Parser   ParserConfig   `yaml:"parser"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	HTTPPort        int    `yaml:"http_port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// MaxBodyBytes limits the size of uploaded logs.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslmode"`
	MaxConnections     int    `yaml:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections"`
	ConnMaxLifetime    string `yaml:"conn_max_lifetime"`
	// EnsureSchema creates missing tables on startup.
	EnsureSchema bool `yaml:"ensure_schema"`
}

// ConnectionString returns the PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" +
		strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=" + d.SSLMode
}

// RabbitMQConfig contains RabbitMQ connection settings.
// An empty URL disables messaging.
type RabbitMQConfig struct {
	URL              string `yaml:"url"`
	Exchange         string `yaml:"exchange"`
	SubmitQueue      string `yaml:"submit_queue"`
	PrefetchCount    int    `yaml:"prefetch_count"`
	ReconnectDelay   string `yaml:"reconnect_delay"`
	MaxReconnectWait string `yaml:"max_reconnect_wait"`
}

// RedisConfig contains the run cache settings.
// An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
}

// CacheTTL returns the cache TTL as a time.Duration.
func (r *RedisConfig) CacheTTL() time.Duration {
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// InboxConfig contains the watched log directory settings.
type InboxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	Workers       int    `yaml:"workers"`
	SweepSchedule string `yaml:"sweep_schedule"`
	RetryDelay    string `yaml:"retry_delay"`
	MaxRetries    int    `yaml:"max_retries"`
}

// RetryBackoff returns the retry delay as a time.Duration.
func (i *InboxConfig) RetryBackoff() time.Duration {
	d, err := time.ParseDuration(i.RetryDelay)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// ParserConfig contains extraction settings.
type ParserConfig struct {
	// PointValue is the currency value of one instrument point.
	PointValue float64 `yaml:"point_value"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			HTTPPort:        8082,
			ReadTimeout:     "15s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "30s",
			MaxBodyBytes:    16 << 20,
		},
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               5432,
			User:               "postgres",
			Password:           "postgres",
			Name:               "strategy_analyser",
			SSLMode:            "disable",
			MaxConnections:     25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    "1h",
			EnsureSchema:       true,
		},
		RabbitMQ: RabbitMQConfig{
			URL:              "",
			Exchange:         "strategy_analyser.events",
			SubmitQueue:      "strategy-analyser-submissions",
			PrefetchCount:    10,
			ReconnectDelay:   "5s",
			MaxReconnectWait: "30s",
		},
		Redis: RedisConfig{
			Addr: "",
			DB:   0,
			TTL:  "10m",
		},
		Inbox: InboxConfig{
			Enabled:       false,
			Dir:           "./inbox",
			Workers:       2,
			SweepSchedule: "@every 1m",
			RetryDelay:    "5s",
			MaxRetries:    1,
		},
		Parser: ParserConfig{
			PointValue: 5.0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
