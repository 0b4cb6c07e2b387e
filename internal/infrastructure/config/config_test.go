package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// gRPC config
	assert.Equal(t, "50051", cfg.GRPC.Port)
	assert.False(t, cfg.GRPC.Enabled)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Empty(t, cfg.Logging.File)

	// Propagation config
	assert.True(t, cfg.Propagation.FilterEnabled)
	assert.Equal(t, "GEN", cfg.Propagation.GeneratedPrefix)
	assert.Zero(t, cfg.Propagation.FanOutParallelism)

	// Executor config
	assert.False(t, cfg.AsyncExecutor.Enabled)
	assert.Equal(t, 10, cfg.AsyncExecutor.CoreSize)
	assert.Equal(t, 20, cfg.AsyncExecutor.MaxSize)
	assert.Equal(t, 500, cfg.AsyncExecutor.QueueCapacity)
	assert.Equal(t, "AsyncThread-", cfg.AsyncExecutor.NamePrefix)
	assert.Equal(t, "abort", cfg.AsyncExecutor.Rejection)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Relay config
	assert.Empty(t, cfg.Relay.URL)
	assert.Equal(t, 5*time.Second, cfg.Relay.Timeout)

	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                          "9000",
		"HOST":                          "127.0.0.1",
		"GRPC_PORT":                     "6000",
		"GRPC_ENABLED":                  "true",
		"LOG_LEVEL":                     "debug",
		"LOG_DEV":                       "true",
		"LOG_FILE":                      "/var/log/tracecontext.log",
		"PROPAGATION_FILTER_ENABLED":    "false",
		"TRACE_GENERATED_PREFIX":        "EDGE",
		"FANOUT_PARALLELISM":            "8",
		"ASYNC_EXECUTOR_ENABLED":        "true",
		"ASYNC_EXECUTOR_CORE_SIZE":      "4",
		"ASYNC_EXECUTOR_MAX_SIZE":       "8",
		"ASYNC_EXECUTOR_QUEUE_CAPACITY": "16",
		"ASYNC_EXECUTOR_KEEP_ALIVE":     "5s",
		"ASYNC_EXECUTOR_REJECTION":      "caller-runs",
		"RATE_LIMIT_RPS":                "500",
		"RATE_LIMIT_BURST":              "1000",
		"RATE_LIMIT_ENABLED":            "false",
		"RELAY_URL":                     "http://downstream:8080/trace",
		"RELAY_TIMEOUT":                 "2s",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, "6000", cfg.GRPC.Port)
	assert.True(t, cfg.GRPC.Enabled)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "/var/log/tracecontext.log", cfg.Logging.File)

	assert.False(t, cfg.Propagation.FilterEnabled)
	assert.Equal(t, "EDGE", cfg.Propagation.GeneratedPrefix)
	assert.Equal(t, 8, cfg.Propagation.FanOutParallelism)

	assert.True(t, cfg.AsyncExecutor.Enabled)
	assert.Equal(t, 4, cfg.AsyncExecutor.CoreSize)
	assert.Equal(t, 8, cfg.AsyncExecutor.MaxSize)
	assert.Equal(t, 16, cfg.AsyncExecutor.QueueCapacity)
	assert.Equal(t, 5*time.Second, cfg.AsyncExecutor.KeepAlive)
	assert.Equal(t, "caller-runs", cfg.AsyncExecutor.Rejection)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "http://downstream:8080/trace", cfg.Relay.URL)
	assert.Equal(t, 2*time.Second, cfg.Relay.Timeout)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	err = os.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, err)
	defer os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Verify default values still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Propagation.FilterEnabled)
	assert.Equal(t, 10, cfg.AsyncExecutor.CoreSize)
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "7000"
propagation:
  filter_enabled: false
  generated_prefix: FILE
async_executor:
  enabled: true
  core_size: 2
  max_size: 4
  keep_alive: 30s
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.False(t, cfg.Propagation.FilterEnabled)
	assert.Equal(t, "FILE", cfg.Propagation.GeneratedPrefix)
	assert.True(t, cfg.AsyncExecutor.Enabled)
	assert.Equal(t, 2, cfg.AsyncExecutor.CoreSize)
	assert.Equal(t, 4, cfg.AsyncExecutor.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.AsyncExecutor.KeepAlive)

	// Untouched sections keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 500, cfg.AsyncExecutor.QueueCapacity)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "7000"
  host: "10.0.0.1"
`)

	err := os.Setenv("PORT", "7100")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: error\n")

	err := os.Setenv(FileEnv, path)
	require.NoError(t, err)
	defer os.Unsetenv(FileEnv)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadFile(writeConfigFile(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port"},
		{"grpc without port", func(c *Config) { c.GRPC.Enabled = true; c.GRPC.Port = "" }, "grpc port"},
		{"empty prefix", func(c *Config) { c.Propagation.GeneratedPrefix = "" }, "prefix"},
		{"negative parallelism", func(c *Config) { c.Propagation.FanOutParallelism = -1 }, "parallelism"},
		{"zero core", func(c *Config) { c.AsyncExecutor.CoreSize = 0 }, "core size"},
		{"max below core", func(c *Config) { c.AsyncExecutor.MaxSize = 5 }, "max size 5 is below core size 10"},
		{"negative queue", func(c *Config) { c.AsyncExecutor.QueueCapacity = -1 }, "queue capacity"},
		{"bad policy", func(c *Config) { c.AsyncExecutor.Rejection = "discard" }, "rejection policy"},
		{"bad rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, "rate limit"},
		{"relative relay url", func(c *Config) { c.Relay.URL = "/trace" }, "relay url"},
		{"relay url", func(c *Config) { c.Relay.URL = "https://downstream/trace" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = ""
	cfg.AsyncExecutor.Rejection = "discard"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
	assert.Contains(t, err.Error(), "rejection policy")
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	err := os.Setenv("ASYNC_EXECUTOR_MAX_SIZE", "2")
	require.NoError(t, err)
	defer os.Unsetenv("ASYNC_EXECUTOR_MAX_SIZE")

	_, err = Load()
	assert.ErrorContains(t, err, "invalid config")

	// LoadOrDefault falls back instead
	cfg := LoadOrDefault()
	assert.Equal(t, 20, cfg.AsyncExecutor.MaxSize)
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{
			name:     "default values",
			wantPort: "8000",
			wantHost: "0.0.0.0",
		},
		{
			name:     "custom port",
			port:     "9000",
			wantPort: "9000",
			wantHost: "0.0.0.0",
		},
		{
			name:     "custom port and host",
			port:     "3000",
			host:     "127.0.0.1",
			wantPort: "3000",
			wantHost: "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean environment
			os.Unsetenv("PORT")
			os.Unsetenv("HOST")

			if tt.port != "" {
				err := os.Setenv("PORT", tt.port)
				require.NoError(t, err)
				defer os.Unsetenv("PORT")
			}
			if tt.host != "" {
				err := os.Setenv("HOST", tt.host)
				require.NoError(t, err)
				defer os.Unsetenv("HOST")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}

func TestPropagationConfig(t *testing.T) {
	tests := []struct {
		name        string
		enabled     string
		prefix      string
		wantEnabled bool
		wantPrefix  string
	}{
		{
			name:        "default values",
			wantEnabled: true,
			wantPrefix:  "GEN",
		},
		{
			name:        "administratively disabled",
			enabled:     "false",
			wantEnabled: false,
			wantPrefix:  "GEN",
		},
		{
			name:        "custom prefix",
			prefix:      "EDGE",
			wantEnabled: true,
			wantPrefix:  "EDGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("PROPAGATION_FILTER_ENABLED")
			os.Unsetenv("TRACE_GENERATED_PREFIX")

			if tt.enabled != "" {
				err := os.Setenv("PROPAGATION_FILTER_ENABLED", tt.enabled)
				require.NoError(t, err)
				defer os.Unsetenv("PROPAGATION_FILTER_ENABLED")
			}
			if tt.prefix != "" {
				err := os.Setenv("TRACE_GENERATED_PREFIX", tt.prefix)
				require.NoError(t, err)
				defer os.Unsetenv("TRACE_GENERATED_PREFIX")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantEnabled, cfg.Propagation.FilterEnabled)
			assert.Equal(t, tt.wantPrefix, cfg.Propagation.GeneratedPrefix)
		})
	}
}
