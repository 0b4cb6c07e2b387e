// Package config provides 12-factor configuration management for the
// trace propagation service.
//
// Configuration starts from Default, is overlaid with the YAML file named
// by CONFIG_FILE (if any), then with environment variables. CLI flags in
// cmd/server override the result.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - GRPC: optional gRPC listener
//   - Logging: level, format and rotating file output
//   - Propagation: boundary filter switch, generated ID prefix, fan-out width
//   - AsyncExecutor: worker pool sizing and overflow policy
//   - RateLimit: per-IP rate limiting
//   - Relay: outbound relay target
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Environment Variables:
//   - PORT, HOST, GRPC_PORT, GRPC_ENABLED
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - PROPAGATION_FILTER_ENABLED, TRACE_GENERATED_PREFIX, FANOUT_PARALLELISM
//   - ASYNC_EXECUTOR_ENABLED, ASYNC_EXECUTOR_CORE_SIZE, ASYNC_EXECUTOR_MAX_SIZE,
//     ASYNC_EXECUTOR_QUEUE_CAPACITY, ASYNC_EXECUTOR_NAME_PREFIX,
//     ASYNC_EXECUTOR_KEEP_ALIVE, ASYNC_EXECUTOR_REJECTION
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - RELAY_URL, RELAY_TIMEOUT
package config
