/*
Package tracing keeps the request trace context visible to every goroutine
that works on behalf of a request.

# Overview

Go has no goroutine-local storage, so each worker goroutine is given a Slot
from a process-wide Registry. The slot holds the worker's trace context, a
mirror of it for diagnostic logging, and the handle of the request being
served. Code finds its slot through the context.Context it was handed.

# Features

- Slot store with set/get/remove semantics that never returns nil
- RequestID header extraction (first comma segment, trimmed)
- Synthesized identifiers in the form GEN-<uuid v4>
- Request boundary filter for gin, net/http and gRPC
- Outgoing gRPC metadata propagation

# Usage

	registry := tracing.NewRegistry()
	resolver := tracing.NewResolver()

	filter := tracing.NewFilter(registry, resolver, true, logger)
	router.Use(filter.Gin())

	server := grpc.NewServer(
		grpc.UnaryInterceptor(filter.UnaryServerInterceptor()),
		grpc.StreamInterceptor(filter.StreamServerInterceptor()),
	)

	// Inside a handler
	rid := tracing.RequestIDFromContext(c.Request.Context())

# Trace Format

The request identifier travels in the RequestID header. Header lookup is
case-insensitive. A value of "abc, def" resolves to "abc".

# Cross-goroutine transfer

A slot is never shared. Work moving to another goroutine carries a
Snapshot, an immutable copy taken on the origin goroutine; see package
propagation.
*/
package tracing
