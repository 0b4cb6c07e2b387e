// Package outbound sends requests to downstream services with the current
// trace context attached.
//
// Every request made through a Client carries the trace headers resolved
// for the inbound request being served (RequestID and any configured
// extras) plus the W3C traceparent of the global OpenTelemetry propagator.
// Calls are rate limited and guarded by a circuit breaker.
//
// Example Usage:
//
//	client, err := outbound.New(outbound.Config{BaseURL: "http://billing:8080"})
//	resp, err := client.Get(ctx, "/invoices")
//
// Inject covers callers that build their own http.Request:
//
//	outbound.Inject(ctx, req.Header)
package outbound
