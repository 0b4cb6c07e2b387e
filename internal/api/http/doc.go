// Package http provides the HTTP handlers of the trace context service.
//
// Every route runs behind the request boundary filter, so handlers read the
// resolved trace context from the request context and hand it to async
// tasks, fan-out items and outbound calls.
//
// Endpoints:
//   - Health: / and /health
//   - Trace: GET /trace, POST /trace/async, POST /trace/fanout
//   - Relay: GET /trace/relay (only with a relay client)
//   - Metrics: GET /metrics/summary
//
// Example Usage:
//
//	handlers := http.NewHandlers(http.Deps{Registry: reg, Decorator: dec, FanOut: fan})
//	handlers.Register(router)
package http
