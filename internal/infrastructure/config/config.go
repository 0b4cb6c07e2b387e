package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "CONFIG_FILE"

// Config holds all application configuration.
//
// Values are layered: Default, then the YAML file, then environment
// variables. Only variables that are set override; the struct tags carry no
// defaults so a file value is never clobbered by an unset variable.
type Config struct {
	Server        ServerConfig      `yaml:"server"`
	GRPC          GRPCConfig        `yaml:"grpc"`
	Logging       LogConfig         `yaml:"logging"`
	Propagation   PropagationConfig `yaml:"propagation"`
	AsyncExecutor ExecutorConfig    `yaml:"async_executor"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	Relay         RelayConfig       `yaml:"relay"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port"`
	Host string `envconfig:"HOST" yaml:"host"`
}

// GRPCConfig holds the optional gRPC listener configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" yaml:"port"`
	Enabled bool   `envconfig:"GRPC_ENABLED" yaml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
	File        string `envconfig:"LOG_FILE" yaml:"file"`
	MaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" yaml:"max_size_mb"`
	MaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" yaml:"max_backups"`
	MaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" yaml:"max_age_days"`
}

// PropagationConfig controls the request boundary and fan-out.
type PropagationConfig struct {
	FilterEnabled   bool   `envconfig:"PROPAGATION_FILTER_ENABLED" yaml:"filter_enabled"`
	GeneratedPrefix string `envconfig:"TRACE_GENERATED_PREFIX" yaml:"generated_prefix"`
	// FanOutParallelism of zero means GOMAXPROCS.
	FanOutParallelism int `envconfig:"FANOUT_PARALLELISM" yaml:"fanout_parallelism"`
}

// ExecutorConfig sizes the async executor.
type ExecutorConfig struct {
	Enabled       bool          `envconfig:"ASYNC_EXECUTOR_ENABLED" yaml:"enabled"`
	CoreSize      int           `envconfig:"ASYNC_EXECUTOR_CORE_SIZE" yaml:"core_size"`
	MaxSize       int           `envconfig:"ASYNC_EXECUTOR_MAX_SIZE" yaml:"max_size"`
	QueueCapacity int           `envconfig:"ASYNC_EXECUTOR_QUEUE_CAPACITY" yaml:"queue_capacity"`
	NamePrefix    string        `envconfig:"ASYNC_EXECUTOR_NAME_PREFIX" yaml:"name_prefix"`
	KeepAlive     time.Duration `envconfig:"ASYNC_EXECUTOR_KEEP_ALIVE" yaml:"keep_alive"`
	Rejection     string        `envconfig:"ASYNC_EXECUTOR_REJECTION" yaml:"rejection"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// RelayConfig configures the outbound relay endpoint. An empty URL
// disables it.
type RelayConfig struct {
	URL              string        `envconfig:"RELAY_URL" yaml:"url"`
	Timeout          time.Duration `envconfig:"RELAY_TIMEOUT" yaml:"timeout"`
	BreakerFailures  uint32        `envconfig:"RELAY_BREAKER_FAILURES" yaml:"breaker_failures"`
	BreakerOpenDelay time.Duration `envconfig:"RELAY_BREAKER_OPEN_DELAY" yaml:"breaker_open_delay"`
}

// Load loads configuration from the file named by CONFIG_FILE, if any, and
// environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile loads configuration from path (skipped when empty) and
// environment variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		GRPC: GRPCConfig{
			Port:    "50051",
			Enabled: false,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  28,
		},
		Propagation: PropagationConfig{
			FilterEnabled:     true,
			GeneratedPrefix:   "GEN",
			FanOutParallelism: 0,
		},
		AsyncExecutor: ExecutorConfig{
			Enabled:       false,
			CoreSize:      10,
			MaxSize:       20,
			QueueCapacity: 500,
			NamePrefix:    "AsyncThread-",
			KeepAlive:     60 * time.Second,
			Rejection:     "abort",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Relay: RelayConfig{
			Timeout:          5 * time.Second,
			BreakerFailures:  5,
			BreakerOpenDelay: 30 * time.Second,
		},
	}
}

// Validate reports inconsistent settings. All problems are returned
// together.
func (c *Config) Validate() error {
	var errs error

	if c.Server.Port == "" {
		errs = multierr.Append(errs, errors.New("server port is required"))
	}
	if c.GRPC.Enabled && c.GRPC.Port == "" {
		errs = multierr.Append(errs, errors.New("grpc port is required when grpc is enabled"))
	}
	if c.Propagation.GeneratedPrefix == "" {
		errs = multierr.Append(errs, errors.New("generated request id prefix must not be empty"))
	}
	if c.Propagation.FanOutParallelism < 0 {
		errs = multierr.Append(errs, fmt.Errorf("fan-out parallelism must not be negative, got %d", c.Propagation.FanOutParallelism))
	}

	e := c.AsyncExecutor
	if e.CoreSize < 1 {
		errs = multierr.Append(errs, fmt.Errorf("executor core size must be positive, got %d", e.CoreSize))
	}
	if e.MaxSize < e.CoreSize {
		errs = multierr.Append(errs, fmt.Errorf("executor max size %d is below core size %d", e.MaxSize, e.CoreSize))
	}
	if e.QueueCapacity < 0 {
		errs = multierr.Append(errs, fmt.Errorf("executor queue capacity must not be negative, got %d", e.QueueCapacity))
	}
	if e.Rejection != "abort" && e.Rejection != "caller-runs" {
		errs = multierr.Append(errs, fmt.Errorf("executor rejection policy must be abort or caller-runs, got %q", e.Rejection))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = multierr.Append(errs, errors.New("rate limit rps and burst must be positive when enabled"))
	}

	if c.Relay.URL != "" {
		u, err := url.Parse(c.Relay.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("relay url %q must be an absolute http(s) url", c.Relay.URL))
		}
	}

	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}
