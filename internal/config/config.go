// Package config defines configuration parsing and the language registry.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds front-end process configuration parsed from environment
// variables.
type Config struct {
	AppEnv          string `env:"APP_ENV" envDefault:"dev"`
	Port            int    `env:"PORT" envDefault:"8080"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	LanguagesConfig string `env:"LANGUAGES_CONFIG" envDefault:""`

	DefaultTimeoutMS uint64 `env:"DEFAULT_TIMEOUT_MS" envDefault:"5000"`
	MaxTimeoutMS     uint64 `env:"MAX_TIMEOUT_MS" envDefault:"60000"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"optimus"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// WorkerConfig holds worker process configuration. Language, QueueName, and
// Image must agree with the registry; the worker refuses to start otherwise.
type WorkerConfig struct {
	AppEnv          string `env:"APP_ENV" envDefault:"dev"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	LanguagesConfig string `env:"LANGUAGES_CONFIG" envDefault:""`

	Language  string `env:"WORKER_LANGUAGE"`
	QueueName string `env:"WORKER_QUEUE"`
	Image     string `env:"WORKER_IMAGE"`

	MaxParallelJobs int `env:"MAX_PARALLEL_JOBS" envDefault:"1"`

	Engine      string `env:"WORKER_ENGINE" envDefault:"docker"`
	PrePull     bool   `env:"WORKER_PREPULL" envDefault:"true"`
	MetricsPort int    `env:"WORKER_METRICS_PORT" envDefault:"9090"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// LoadWorker parses worker-specific environment variables.
func LoadWorker() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return WorkerConfig{}, fmt.Errorf("op=config.LoadWorker: %w", err)
	}
	if cfg.Language == "" {
		return WorkerConfig{}, fmt.Errorf("op=config.LoadWorker: WORKER_LANGUAGE is required")
	}
	if cfg.QueueName == "" {
		return WorkerConfig{}, fmt.Errorf("op=config.LoadWorker: WORKER_QUEUE is required")
	}
	if cfg.Image == "" {
		return WorkerConfig{}, fmt.Errorf("op=config.LoadWorker: WORKER_IMAGE is required")
	}
	if cfg.MaxParallelJobs < 1 {
		cfg.MaxParallelJobs = 1
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
