package outbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
)

// ErrUpstream reports a 5xx answer from the target.
var ErrUpstream = errors.New("upstream error")

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	// BreakerOpenDelay is how long the breaker stays open.
	BreakerOpenDelay time.Duration
	// RequestsPerSecond caps outgoing calls. Zero means unlimited.
	RequestsPerSecond float64
}

// Response is the part of an answer callers need.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for breaker transitions and failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records outbound calls and breaker state.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.resty.SetTransport(rt) }
}

// Client calls one downstream service with the caller's trace context
// attached to every request.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *monitoring.Metrics
	host    string
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("outbound: invalid base url %q", cfg.BaseURL)
	}

	c := &Client{
		resty:   resty.New(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
		host:    u.Host,
	}
	c.resty.
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", "tracecontext/1.0")
	if cfg.Timeout > 0 {
		c.resty.SetTimeout(cfg.Timeout)
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	c.resty.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		Inject(r.Context(), r.Header)
		return nil
	})

	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = resilience.New("outbound:"+u.Host, resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: c.onStateChange,
	})
	return c, nil
}

// Get requests path relative to the base URL. A 5xx answer is returned
// together with an error wrapping ErrUpstream and counts against the
// breaker.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("outbound: rate limit: %w", err)
	}

	var out *Response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := c.resty.R().SetContext(ctx).Get(path)
		if err != nil {
			return err
		}
		out = &Response{
			StatusCode: resp.StatusCode(),
			Header:     resp.Header(),
			Body:       resp.Body(),
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
		}
		return nil
	})

	c.record(out, err)
	if err != nil {
		c.logger.Warn("Outbound request failed",
			append(logging.Fields(ctx), zap.String("host", c.host), zap.String("path", path), zap.Error(err))...)
	}
	return out, err
}

// BreakerState returns the state of the client's breaker.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) record(resp *Response, err error) {
	if c.metrics == nil {
		return
	}
	status := "error"
	switch {
	case resp != nil:
		status = strconv.Itoa(resp.StatusCode)
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		status = "rejected"
	}
	c.metrics.RecordOutbound(c.host, status)
}

func (c *Client) onStateChange(name string, from, to resilience.State) {
	c.logger.Info("Circuit breaker state changed",
		zap.String("breaker", name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if c.metrics != nil {
		c.metrics.SetBreakerState(name, int(to))
	}
}

// Inject writes the trace context of the slot bound to ctx into h,
// followed by the W3C trace headers of the global propagator.
func Inject(ctx context.Context, h http.Header) {
	for k, v := range tracing.FromContext(ctx) {
		h.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}
