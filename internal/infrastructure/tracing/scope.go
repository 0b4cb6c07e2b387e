package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/grpc/metadata"
)

// ErrNoRequestScope is returned when a caller requires a request scope
// and none is installed.
var ErrNoRequestScope = errors.New("no current request scope")

// PreconditionError reports that an operation was called without the
// ambient state it explicitly requires.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// RequestScope is the handle of one inbound request. It is shared by the
// request goroutine and every worker the request hands work to, so its
// request fields are read-only; attributes are guarded.
type RequestScope struct {
	Method     string
	Path       string
	RemoteAddr string

	header http.Header

	mu    sync.RWMutex
	attrs map[string]any
}

// NewRequestScope builds a scope from an inbound HTTP request.
func NewRequestScope(r *http.Request) *RequestScope {
	return &RequestScope{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		header:     r.Header.Clone(),
		attrs:      map[string]any{},
	}
}

// NewRPCRequestScope builds a scope from inbound gRPC metadata.
func NewRPCRequestScope(fullMethod string, md metadata.MD) *RequestScope {
	h := make(http.Header, len(md))
	for k, vals := range md {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	return &RequestScope{
		Method: "RPC",
		Path:   fullMethod,
		header: h,
		attrs:  map[string]any{},
	}
}

// Header returns the request headers.
func (rs *RequestScope) Header() HeaderSource {
	return rs.header
}

// Attribute returns a request attribute.
func (rs *RequestScope) Attribute(key string) (any, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	v, ok := rs.attrs[key]
	return v, ok
}

// SetAttribute stores a request attribute.
func (rs *RequestScope) SetAttribute(key string, value any) {
	rs.mu.Lock()
	rs.attrs[key] = value
	rs.mu.Unlock()
}

// RequestScopeFrom returns the request scope installed on the slot bound to
// ctx, if any.
func RequestScopeFrom(ctx context.Context) (*RequestScope, bool) {
	slot, ok := SlotFrom(ctx)
	if !ok {
		return nil, false
	}
	scope := slot.RequestScope()
	return scope, scope != nil
}

// RequireRequestScope is RequestScopeFrom for callers that cannot work
// without a request. It fails with a *PreconditionError wrapping
// ErrNoRequestScope.
func RequireRequestScope(ctx context.Context) (*RequestScope, error) {
	scope, ok := RequestScopeFrom(ctx)
	if !ok {
		return nil, &PreconditionError{Op: "require request scope", Err: ErrNoRequestScope}
	}
	return scope, nil
}
