package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/tracecontext/internal/executor"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tracecontext/internal/outbound"
	"github.com/GriffinCanCode/tracecontext/internal/propagation"
)

// Deps are the components the handlers serve from. Pool and Relay are
// optional.
type Deps struct {
	Registry  *tracing.Registry
	Resolver  *tracing.Resolver
	Decorator *propagation.Decorator
	FanOut    *propagation.FanOut
	Pool      *executor.Pool
	Relay     *outbound.Client
	Metrics   *monitoring.Metrics
	Logger    *logging.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry  *tracing.Registry
	resolver  *tracing.Resolver
	decorator *propagation.Decorator
	fanout    *propagation.FanOut
	pool      *executor.Pool
	relay     *outbound.Client
	metrics   *monitoring.Metrics
	logger    *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handlers{
		registry:  deps.Registry,
		resolver:  deps.Resolver,
		decorator: deps.Decorator,
		fanout:    deps.FanOut,
		pool:      deps.Pool,
		relay:     deps.Relay,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Register mounts the routes on r. The relay route only exists when a
// relay client is configured.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/trace", h.Trace)
	r.POST("/trace/async", h.TraceAsync)
	r.POST("/trace/fanout", h.TraceFanOut)
	if h.relay != nil {
		r.GET("/trace/relay", h.TraceRelay)
	}
	if h.metrics != nil {
		r.GET("/metrics/summary", h.MetricsSummary)
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "tracecontext",
		"version": "0.1.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":       "healthy",
		"active_slots": h.registry.Active(),
	}
	if h.pool != nil {
		body["executor"] = gin.H{
			"workers": h.pool.Workers(),
			"queued":  h.pool.Queued(),
		}
	}
	if h.relay != nil {
		body["relay"] = gin.H{"breaker": h.relay.BreakerState().String()}
	}
	c.JSON(http.StatusOK, body)
}

// MetricsSummary returns the JSON metrics snapshot
func (h *Handlers) MetricsSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
