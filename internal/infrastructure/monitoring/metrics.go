package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracecontext"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// Propagation metrics
	ResolveTotal *prometheus.CounterVec
	FanOutItems  *prometheus.CounterVec

	// Executor metrics
	ExecutorTasks     *prometheus.CounterVec
	ExecutorDuration  *prometheus.HistogramVec
	ExecutorQueueWait *prometheus.HistogramVec
	ExecutorWorkers   *prometheus.GaugeVec
	ExecutorQueued    *prometheus.GaugeVec

	// Outbound metrics
	OutboundRequests *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec

	factory   promauto.Factory
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	TotalErrors        int64   `json:"total_errors"`
	GeneratedIDs       int64   `json:"generated_ids"`
	HeaderIDs          int64   `json:"header_ids"`
	TasksCompleted     int64   `json:"tasks_completed"`
	TasksRejected      int64   `json:"tasks_rejected"`
	TotalDuration      float64 `json:"total_duration_seconds"` // sum of all request durations
	RequestCount       int64   `json:"request_count"`          // count for averaging
	UptimeSeconds      float64 `json:"uptime_seconds"`
	AverageDurationSec float64 `json:"average_duration_seconds"`
}

// NewMetrics creates the metrics collector and registers it with reg.
// A nil reg means the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		factory:   f,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// gRPC metrics
		GRPCCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_calls_total",
				Help:      "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grpc_duration_seconds",
				Help:      "gRPC call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),

		// Propagation metrics
		ResolveTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trace_resolve_total",
				Help:      "Trace context resolutions by outcome (header, generated, cached)",
			},
			[]string{"outcome"},
		),
		FanOutItems: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fanout_items_total",
				Help:      "Fan-out items processed, by the goroutine that ran them",
			},
			[]string{"worker"},
		),

		// Executor metrics
		ExecutorTasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executor_tasks_total",
				Help:      "Executor tasks by outcome",
			},
			[]string{"executor", "outcome"},
		),
		ExecutorDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "executor_task_duration_seconds",
				Help:      "Executor task run time in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"executor"},
		),
		ExecutorQueueWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "executor_queue_wait_seconds",
				Help:      "Time a task spent between submission and start",
				Buckets:   []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"executor"},
		),
		ExecutorWorkers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executor_workers",
				Help:      "Live executor workers",
			},
			[]string{"executor"},
		),
		ExecutorQueued: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executor_queued_tasks",
				Help:      "Tasks waiting in the executor queue",
			},
			[]string{"executor"},
		),

		// Outbound metrics
		OutboundRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_requests_total",
				Help:      "Outbound HTTP requests carrying the trace context",
			},
			[]string{"host", "status"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// TrackSlots exports the number of slots currently handed out.
func (m *Metrics) TrackSlots(active func() int64) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trace_slots_active",
			Help:      "Trace context slots currently owned by a goroutine",
		},
		func() float64 { return float64(active()) },
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordResolve records how a trace context was obtained.
func (m *Metrics) RecordResolve(outcome string) {
	m.ResolveTotal.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	switch outcome {
	case "generated":
		m.snapshot.GeneratedIDs++
	case "header":
		m.snapshot.HeaderIDs++
	}
	m.mu.Unlock()
}

// RecordFanOutItem records one fan-out item.
func (m *Metrics) RecordFanOutItem(onOrigin bool) {
	worker := "helper"
	if onOrigin {
		worker = "origin"
	}
	m.FanOutItems.WithLabelValues(worker).Inc()
}

// RecordTask records a finished or refused executor task. outcome is one of
// "completed", "panicked", "rejected" or "caller_ran".
func (m *Metrics) RecordTask(executor, outcome string, duration time.Duration) {
	m.ExecutorTasks.WithLabelValues(executor, outcome).Inc()
	if outcome != "rejected" {
		m.ExecutorDuration.WithLabelValues(executor).Observe(duration.Seconds())
	}

	m.mu.Lock()
	switch outcome {
	case "rejected":
		m.snapshot.TasksRejected++
	default:
		m.snapshot.TasksCompleted++
	}
	m.mu.Unlock()
}

// RecordQueueWait records how long a task waited before a worker took it.
func (m *Metrics) RecordQueueWait(executor string, wait time.Duration) {
	m.ExecutorQueueWait.WithLabelValues(executor).Observe(wait.Seconds())
}

// SetExecutorLoad sets the executor's live worker and queued task counts.
func (m *Metrics) SetExecutorLoad(executor string, workers, queued int) {
	m.ExecutorWorkers.WithLabelValues(executor).Set(float64(workers))
	m.ExecutorQueued.WithLabelValues(executor).Set(float64(queued))
}

// RecordOutbound records an outbound request.
func (m *Metrics) RecordOutbound(host, status string) {
	m.OutboundRequests.WithLabelValues(host, status).Inc()
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	if s.RequestCount > 0 {
		s.AverageDurationSec = s.TotalDuration / float64(s.RequestCount)
	}
	return s
}
