package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Queue     QueueConfig     `envconfig:"QUEUE"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Retry     RetryConfig     `envconfig:"RETRY"`
	Log       LogConfig       `envconfig:"LOG"`
	Tracing   TracingConfig   `envconfig:"TRACING"`
	Metrics   MetricsConfig   `envconfig:"METRICS"`
}

type ServerConfig struct {
	Port         int           `envconfig:"PORT" default:"8080"`
	Host         string        `envconfig:"HOST" default:"localhost"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	// Enabled selects the Redis schedule repository; without it schedules
	// live in process memory and do not survive restarts.
	Enabled  bool          `envconfig:"ENABLED" default:"false"`
	URL      string        `envconfig:"URL" default:"redis://localhost:6379"`
	Password string        `envconfig:"PASSWORD" default:""`
	DB       int           `envconfig:"DB" default:"0"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type QueueConfig struct {
	MaxConcurrent   int           `envconfig:"MAX_CONCURRENT" default:"5"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"2"`
	RetryBaseDelay  time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"256"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type SchedulerConfig struct {
	BatchSize int  `envconfig:"BATCH_SIZE" default:"10"`
	UseQueue  bool `envconfig:"USE_QUEUE" default:"true"`

	// Per-scan-type dispatch rate limiting.
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"2"`
	RateBurst int     `envconfig:"RATE_BURST" default:"5"`
}

type RetryConfig struct {
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	InitialDelay      time.Duration `envconfig:"INITIAL_DELAY" default:"1s"`
	MaxDelay          time.Duration `envconfig:"MAX_DELAY" default:"10s"`
	BackoffMultiplier float64       `envconfig:"BACKOFF_MULTIPLIER" default:"2"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL"  default:"info"`
	Format string `envconfig:"FORMAT" default:"console"` // json in prod
}

type TracingConfig struct {
	Enabled      bool   `envconfig:"ENABLED" default:"false"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
	Environment  string `envconfig:"ENVIRONMENT" default:"development"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Address string `envconfig:"ADDRESS" default:":9091"`
}

// Address returns the full server address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads config from env variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TABLEGUARD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Config Validator
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue max concurrency must be positive, got: %d", c.Queue.MaxConcurrent)
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got: %d", c.Queue.MaxRetries)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive, got: %d", c.Retry.MaxAttempts)
	}

	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got: %f", c.Retry.BackoffMultiplier)
	}

	return nil
}
