package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracecontext/internal/executor"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tracecontext/internal/outbound"
	"github.com/GriffinCanCode/tracecontext/internal/propagation"
	"github.com/GriffinCanCode/tracecontext/internal/shared/utils"
)

// View is what one goroutine observed of the trace context.
type View struct {
	Worker    string            `json:"worker,omitempty"`
	RequestID string            `json:"request_id"`
	Context   map[string]string `json:"context"`
}

func viewOf(ctx context.Context) View {
	return View{
		Worker:    executor.WorkerName(ctx),
		RequestID: tracing.RequestIDFromContext(ctx),
		Context:   tracing.FromContext(ctx).Map(),
	}
}

// Trace reports the trace context and diagnostic mirror of the request
func (h *Handlers) Trace(c *gin.Context) {
	ctx := c.Request.Context()
	rid := tracing.RequestIDFromContext(ctx)

	body := gin.H{
		"request_id":  rid,
		"context":     tracing.FromContext(ctx).Map(),
		"diagnostics": map[string]string{},
	}
	if h.resolver != nil {
		body["generated"] = h.resolver.Generated(rid)
	}
	if slot, ok := tracing.SlotFrom(ctx); ok {
		body["diagnostics"] = slot.Diagnostics()
	}
	if scope, ok := tracing.RequestScopeFrom(ctx); ok {
		body["method"] = scope.Method
		body["path"] = scope.Path
	}
	c.JSON(http.StatusOK, body)
}

// TraceAsync runs a task on the executor, or on a new goroutine when the
// executor is disabled, and reports what the task saw.
func (h *Handlers) TraceAsync(c *gin.Context) {
	ctx := c.Request.Context()

	var runner propagation.Runner
	if h.pool != nil {
		runner = h.pool
	}

	future := propagation.Supply(ctx, h.decorator, runner, func(ctx context.Context) (View, error) {
		h.logger.For(ctx).Debug("Async task running")
		return viewOf(ctx), nil
	})

	view, err := future.Get(ctx)
	switch {
	case errors.Is(err, executor.ErrRejected), errors.Is(err, executor.ErrShutdown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.For(ctx).Error("Async task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": tracing.RequestIDFromContext(ctx),
		"task":       view,
	})
}

// FanOutRequest is the body of POST /trace/fanout
type FanOutRequest struct {
	Items []string `json:"items" binding:"required"`
}

// ItemView is what the goroutine processing one item observed.
type ItemView struct {
	Item      string `json:"item"`
	RequestID string `json:"request_id"`
}

// TraceFanOut processes the items in parallel and reports the request
// identifier each item observed.
func (h *Handlers) TraceFanOut(c *gin.Context) {
	var req FanOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid fan-out request format"})
		return
	}
	if err := utils.ValidateItems(req.Items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	type indexed struct {
		pos  int
		item string
	}
	items := make([]indexed, len(req.Items))
	for i, item := range req.Items {
		items[i] = indexed{pos: i, item: item}
	}

	ctx := c.Request.Context()
	views := make([]ItemView, len(items))
	err := propagation.ForEach(ctx, h.fanout, items, func(ctx context.Context, it indexed) error {
		views[it.pos] = ItemView{Item: it.item, RequestID: tracing.RequestIDFromContext(ctx)}
		return nil
	})
	if err != nil {
		h.logger.For(ctx).Error("Fan-out failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":  tracing.RequestIDFromContext(ctx),
		"parallelism": h.fanout.Parallelism(),
		"items":       views,
	})
}

// TraceRelay forwards to the relay target with the request's trace headers
// and returns what came back.
func (h *Handlers) TraceRelay(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.DefaultQuery("path", "/")
	if err := utils.ValidateRelayPath(path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.relay.Get(ctx, path)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, outbound.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           err.Error(),
			"upstream_status": resp.StatusCode,
		})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":      tracing.RequestIDFromContext(ctx),
		"upstream_status": resp.StatusCode,
		"body":            string(resp.Body),
	})
}
