package tracing

import (
	"net/http"
	"strings"
)

// Well-known trace header
const (
	RequestIDHeader = "RequestID"
	// DefaultGeneratedPrefix prefixes identifiers synthesized for requests
	// that arrive without one.
	DefaultGeneratedPrefix = "GEN"
)

// TraceContext maps trace header names to their resolved values.
// Keys are unique; the zero value behaves as an empty context.
type TraceContext map[string]string

// RequestID returns the request identifier, or "" if none was resolved.
func (tc TraceContext) RequestID() string {
	return tc[RequestIDHeader]
}

// IsEmpty reports whether the context carries no values.
func (tc TraceContext) IsEmpty() bool {
	return len(tc) == 0
}

// Clone returns an independent copy. Never returns nil.
func (tc TraceContext) Clone() TraceContext {
	out := make(TraceContext, len(tc))
	for k, v := range tc {
		out[k] = v
	}
	return out
}

// Map returns the context as a plain unique-key map for internal
// propagation and diagnostic logging.
func (tc TraceContext) Map() map[string]string {
	out := make(map[string]string, len(tc))
	for k, v := range tc {
		out[k] = v
	}
	return out
}

// Header returns the context as a single-valued multi-map suitable for
// outbound requests. Keys are canonicalized, so lookups ignore case.
func (tc TraceContext) Header() http.Header {
	h := make(http.Header, len(tc))
	for k, v := range tc {
		h.Set(k, v)
	}
	return h
}

// Snapshot is an immutable copy of a TraceContext taken at one instant,
// used to move a context from one goroutine to another.
type Snapshot struct {
	values TraceContext
}

// NewSnapshot copies tc into a snapshot.
func NewSnapshot(tc TraceContext) Snapshot {
	return Snapshot{values: tc.Clone()}
}

// Context returns a fresh copy of the captured context.
func (s Snapshot) Context() TraceContext {
	return s.values.Clone()
}

// RequestID returns the captured request identifier.
func (s Snapshot) RequestID() string {
	return s.values.RequestID()
}

// Get returns the captured value for key.
func (s Snapshot) Get(key string) string {
	return s.values[key]
}

// IsEmpty reports whether nothing was captured.
func (s Snapshot) IsEmpty() bool {
	return s.values.IsEmpty()
}

// Len returns the number of captured values.
func (s Snapshot) Len() int {
	return len(s.values)
}

// DiagnosticKey converts a header name into a logging field name.
func DiagnosticKey(header string) string {
	return strings.ReplaceAll(header, "-", "_")
}
