package tracing

import (
	"strings"

	"github.com/GriffinCanCode/tracecontext/internal/shared/id"
)

// HeaderSource is a read-only view of inbound request headers.
// http.Header satisfies it.
type HeaderSource interface {
	Get(key string) string
}

// HeaderFunc adapts a lookup function to HeaderSource.
type HeaderFunc func(key string) string

// Get implements HeaderSource.
func (f HeaderFunc) Get(key string) string { return f(key) }

// Outcome describes how a resolve call produced its context.
type Outcome string

const (
	OutcomeCached    Outcome = "cached"
	OutcomeHeader    Outcome = "header"
	OutcomeGenerated Outcome = "generated"
)

// Resolver extracts the trace context from inbound headers, synthesizing a
// request identifier when the request carries none.
type Resolver struct {
	headers []string
	prefix  string
	newID   func(prefix string) string
	custom  bool
	observe func(Outcome)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHeaders replaces the recognized header list. RequestIDHeader is always
// kept since identifier synthesis depends on it.
func WithHeaders(names ...string) Option {
	return func(r *Resolver) {
		r.headers = []string{RequestIDHeader}
		for _, n := range names {
			if n != RequestIDHeader {
				r.headers = append(r.headers, n)
			}
		}
	}
}

// WithGeneratedPrefix sets the prefix of synthesized identifiers.
func WithGeneratedPrefix(prefix string) Option {
	return func(r *Resolver) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithIDGenerator overrides identifier synthesis. Meant for tests.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(r *Resolver) {
		r.newID = fn
		r.custom = true
	}
}

// WithObserver registers a callback invoked with every resolve outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(r *Resolver) {
		r.observe = fn
	}
}

// NewResolver creates a resolver recognizing RequestIDHeader and generating
// "GEN-<uuid>" identifiers unless configured otherwise.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		headers: []string{RequestIDHeader},
		prefix:  DefaultGeneratedPrefix,
		newID:   id.NewGeneratedRequestID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the slot's trace context, resolving it from src first if
// the slot holds none. A context that is already present is returned
// unchanged, so repeated calls within one request are cheap reads.
func (r *Resolver) Resolve(slot *Slot, src HeaderSource) TraceContext {
	if slot.IsPresent() {
		r.report(OutcomeCached)
		return slot.Get()
	}

	tc := r.Extract(src)
	outcome := OutcomeHeader
	if tc.RequestID() == "" {
		tc[RequestIDHeader] = r.newID(r.prefix)
		outcome = OutcomeGenerated
	}

	slot.Set(tc)
	r.report(outcome)
	return slot.Get()
}

// Generated reports whether rid has the shape of an identifier this
// resolver synthesizes. Always false under WithIDGenerator.
func (r *Resolver) Generated(rid string) bool {
	if r.custom {
		return false
	}
	return id.IsGeneratedRequestID(rid, r.prefix)
}

// Extract reads the recognized headers from src without touching any slot.
// Only the first comma-separated segment of a value is kept, trimmed;
// empty results are dropped.
func (r *Resolver) Extract(src HeaderSource) TraceContext {
	tc := TraceContext{}
	if src == nil {
		return tc
	}
	for _, name := range r.headers {
		if v := firstSegment(src.Get(name)); v != "" {
			tc[name] = v
		}
	}
	return tc
}

func (r *Resolver) report(o Outcome) {
	if r.observe != nil {
		r.observe(o)
	}
}

func firstSegment(value string) string {
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}
