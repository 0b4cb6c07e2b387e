/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the service,
tracking HTTP and gRPC traffic and the behavior of trace propagation: how
request identifiers are obtained, how fan-out work is spread, and the load
of the async executor.

# Features

- HTTP request metrics (latency, throughput, size)
- gRPC call metrics (latency, status codes)
- Resolve outcomes (header, generated, cached)
- Fan-out items by origin or helper goroutine
- Executor task outcomes, run time, queue wait, workers and queue depth
- Outbound requests and circuit breaker state
- Uptime and active slot gauges

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	metrics.TrackSlots(registry.Active)

	router.Use(monitoring.Middleware(metrics))

	resolver := tracing.NewResolver(tracing.WithObserver(func(o tracing.Outcome) {
		metrics.RecordResolve(string(o))
	}))

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
