// Package main is the entry point for the trace context service.
//
// The service resolves a RequestID for every inbound HTTP or gRPC request,
// keeps it available to the goroutine serving the request, and carries it
// into async tasks, parallel fan-out and outbound calls.
//
// Configuration:
//   - Defaults
//   - YAML file (-config or CONFIG_FILE)
//   - Environment variables (12-factor)
//   - CLI flags (override everything)
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# With async executor and gRPC
//	ASYNC_EXECUTOR_ENABLED=true GRPC_ENABLED=true ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
