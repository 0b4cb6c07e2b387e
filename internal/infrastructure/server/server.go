package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apihttp "github.com/GriffinCanCode/tracecontext/internal/api/http"
	"github.com/GriffinCanCode/tracecontext/internal/api/middleware"
	"github.com/GriffinCanCode/tracecontext/internal/executor"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tracecontext/internal/outbound"
	tcprop "github.com/GriffinCanCode/tracecontext/internal/propagation"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP and gRPC servers and their dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	registry *tracing.Registry
	router   *gin.Engine
	http     *http.Server
	grpc     *grpc.Server
	health   *health.Server
	pool     *executor.Pool
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	registry *prometheus.Registry
}

// WithPrometheusRegistry registers the metrics with reg instead of a
// private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// NewServer wires every component from cfg.
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	logger.Info("Initializing trace context service",
		zap.String("port", cfg.Server.Port),
		zap.Bool("filter_enabled", cfg.Propagation.FilterEnabled),
		zap.Bool("executor_enabled", cfg.AsyncExecutor.Enabled),
		zap.Bool("grpc_enabled", cfg.GRPC.Enabled),
	)

	// W3C traceparent and baggage ride along with the RequestID
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metrics := monitoring.NewMetrics(o.registry)
	registry := tracing.NewRegistry()
	metrics.TrackSlots(registry.Active)

	resolver := tracing.NewResolver(
		tracing.WithGeneratedPrefix(cfg.Propagation.GeneratedPrefix),
		tracing.WithObserver(func(outcome tracing.Outcome) {
			metrics.RecordResolve(string(outcome))
		}),
	)
	filter := tracing.NewFilter(registry, resolver, cfg.Propagation.FilterEnabled, logger.Logger)
	decorator := tcprop.NewDecorator(registry, resolver)
	fanout := tcprop.NewFanOut(registry,
		tcprop.WithParallelism(cfg.Propagation.FanOutParallelism),
		tcprop.WithItemObserver(metrics.RecordFanOutItem),
	)

	var workers *executor.Pool
	if cfg.AsyncExecutor.Enabled {
		p, err := executor.New(executorConfig(cfg.AsyncExecutor), registry,
			executor.WithDecorator(decorator),
			executor.WithLogger(logger.Logger),
			executor.WithMetrics(metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create async executor: %w", err)
		}
		workers = p
		logger.Info("Async executor initialized",
			zap.Int("core_size", cfg.AsyncExecutor.CoreSize),
			zap.Int("max_size", cfg.AsyncExecutor.MaxSize),
			zap.Int("queue_capacity", cfg.AsyncExecutor.QueueCapacity),
		)
	}

	var relay *outbound.Client
	if cfg.Relay.URL != "" {
		c, err := outbound.New(outbound.Config{
			BaseURL:          cfg.Relay.URL,
			Timeout:          cfg.Relay.Timeout,
			BreakerFailures:  cfg.Relay.BreakerFailures,
			BreakerOpenDelay: cfg.Relay.BreakerOpenDelay,
		}, outbound.WithLogger(logger.Logger), outbound.WithMetrics(metrics))
		if err != nil {
			if workers != nil {
				_ = workers.Shutdown(context.Background())
			}
			return nil, fmt.Errorf("failed to create relay client: %w", err)
		}
		relay = c
		logger.Info("Relay configured", zap.String("url", cfg.Relay.URL))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Boundary first so every later middleware and handler sees the context
	router.Use(gin.Recovery())
	router.Use(filter.Gin())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Registry:  registry,
		Resolver:  resolver,
		Decorator: decorator,
		FanOut:    fanout,
		Pool:      workers,
		Relay:     relay,
		Metrics:   metrics,
		Logger:    logger,
	})
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})))

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		router:   router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		pool: workers,
	}

	if cfg.GRPC.Enabled {
		s.grpc = grpc.NewServer(
			grpc.ChainUnaryInterceptor(
				filter.UnaryServerInterceptor(),
				monitoring.UnaryServerInterceptor(metrics),
			),
			grpc.ChainStreamInterceptor(filter.StreamServerInterceptor()),
		)
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(s.grpc, s.health)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func executorConfig(c config.ExecutorConfig) executor.Config {
	return executor.Config{
		CoreSize:      c.CoreSize,
		MaxSize:       c.MaxSize,
		QueueCapacity: c.QueueCapacity,
		NamePrefix:    c.NamePrefix,
		KeepAlive:     c.KeepAlive,
		Rejection:     executor.Policy(c.Rejection),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP, and gRPC when enabled, until ctx ends or a listener
// fails. The listeners are shut down gracefully before Run returns.
func (s *Server) Run(ctx context.Context) error {
	var lis net.Listener
	if s.grpc != nil {
		addr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		lis = l
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(context.Context) error {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if lis != nil {
		p.Go(func(context.Context) error {
			return s.serveGRPC(lis)
		})
	}
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return s.stopListeners()
	})

	return p.Wait()
}

func (s *Server) serveGRPC(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

func (s *Server) stopListeners() error {
	s.logger.Info("Shutting down listeners...")

	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Close drains the async executor and flushes the logger.
func (s *Server) Close(ctx context.Context) error {
	var err error
	if s.pool != nil {
		if err = s.pool.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to drain async executor", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
	return err
}
