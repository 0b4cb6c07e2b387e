package tracing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Filter installs the trace context at request entry and guarantees its
// removal at exit.
type Filter struct {
	registry *Registry
	resolver *Resolver
	enabled  bool
	logger   *zap.Logger
}

// NewFilter creates a request boundary filter. A disabled filter is a pure
// pass-through.
func NewFilter(registry *Registry, resolver *Resolver, enabled bool, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		registry: registry,
		resolver: resolver,
		enabled:  enabled,
		logger:   logger,
	}
}

// Enabled reports whether the filter installs context.
func (f *Filter) Enabled() bool {
	return f.enabled
}

// Do runs next inside the request boundary of scope.
//
// The slot bound to ctx is used if there is one, otherwise a slot is
// acquired for the call and released afterwards. Whatever next does
// (return, fail or panic) the slot's context, diagnostics and request scope
// are cleared before Do returns or the panic continues.
func (f *Filter) Do(ctx context.Context, scope *RequestScope, next func(ctx context.Context) error) error {
	if !f.enabled {
		return next(ctx)
	}

	slot, bound := SlotFrom(ctx)
	if bound && slot.RequestScope() != nil {
		// Already inside a boundary; the outer one owns cleanup.
		return next(ctx)
	}
	if !bound {
		slot = f.registry.Acquire()
		ctx = WithSlot(ctx, slot)
	}

	defer func() {
		slot.Remove()
		slot.ClearDiagnostics()
		slot.ResetRequestScope()
		if !bound {
			f.registry.Release(slot)
		}
	}()

	slot.SetRequestScope(scope)
	tc := f.resolver.Resolve(slot, scope.Header())
	slot.PutDiagnostics(tc)

	f.logger.Debug("request context installed",
		zap.String("request_id", tc.RequestID()),
		zap.String("method", scope.Method),
		zap.String("path", scope.Path),
		zap.Uint64("slot", slot.ID()),
	)

	return next(ctx)
}

// Gin returns the filter as gin middleware. The resolved identifier is
// echoed in the response headers.
func (f *Filter) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		_ = f.Do(ctx, NewRequestScope(c.Request), func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			echo(ctx, c.Writer.Header())
			c.Next()
			return nil
		})
	}
}

// Handler wraps a net/http handler in the request boundary.
func (f *Filter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		_ = f.Do(ctx, NewRequestScope(r), func(ctx context.Context) error {
			echo(ctx, w.Header())
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
	})
}

// UnaryServerInterceptor returns the filter as a gRPC unary interceptor.
func (f *Filter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		var resp interface{}
		err := f.Do(ctx, NewRPCRequestScope(info.FullMethod, md), func(ctx context.Context) error {
			var err error
			resp, err = handler(ctx, req)
			return err
		})
		return resp, err
	}
}

// StreamServerInterceptor returns the filter as a gRPC stream interceptor.
func (f *Filter) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		md, _ := metadata.FromIncomingContext(ss.Context())

		return f.Do(ss.Context(), NewRPCRequestScope(info.FullMethod, md), func(ctx context.Context) error {
			return handler(srv, &scopedServerStream{ServerStream: ss, ctx: ctx})
		})
	}
}

// scopedServerStream wraps grpc.ServerStream with the boundary context
type scopedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClientInterceptor attaches the caller's trace context to outgoing
// gRPC metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(outgoing(ctx), method, req, reply, cc, opts...)
	}
}

func outgoing(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	if tc.IsEmpty() {
		return ctx
	}
	pairs := make([]string, 0, 2*len(tc))
	for k, v := range tc {
		pairs = append(pairs, k, v)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func echo(ctx context.Context, h http.Header) {
	if rid := RequestIDFromContext(ctx); rid != "" {
		h.Set(RequestIDHeader, rid)
	}
}
