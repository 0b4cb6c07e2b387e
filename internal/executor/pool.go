package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tracecontext/internal/shared/id"
)

var (
	ErrRejected = errors.New("executor: task rejected, queue full")
	ErrShutdown = errors.New("executor: shut down")
)

// Policy decides what happens to a task the pool cannot take.
type Policy string

const (
	PolicyAbort      Policy = "abort"
	PolicyCallerRuns Policy = "caller-runs"
)

// Config configures a Pool.
type Config struct {
	CoreSize      int
	MaxSize       int
	QueueCapacity int
	NamePrefix    string
	KeepAlive     time.Duration
	Rejection     Policy
}

// DefaultConfig returns the stock pool sizing.
func DefaultConfig() Config {
	return Config{
		CoreSize:      10,
		MaxSize:       20,
		QueueCapacity: 500,
		NamePrefix:    "AsyncThread-",
		KeepAlive:     60 * time.Second,
		Rejection:     PolicyAbort,
	}
}

// Validate reports an inconsistent configuration.
func (c Config) Validate() error {
	switch {
	case c.CoreSize < 1:
		return fmt.Errorf("executor: core size must be positive, got %d", c.CoreSize)
	case c.MaxSize < c.CoreSize:
		return fmt.Errorf("executor: max size %d below core size %d", c.MaxSize, c.CoreSize)
	case c.QueueCapacity < 0:
		return fmt.Errorf("executor: negative queue capacity %d", c.QueueCapacity)
	case c.KeepAlive <= 0:
		return fmt.Errorf("executor: keep-alive must be positive, got %s", c.KeepAlive)
	case c.Rejection != PolicyAbort && c.Rejection != PolicyCallerRuns:
		return fmt.Errorf("executor: unknown rejection policy %q", c.Rejection)
	}
	return nil
}

// TaskDecorator transforms a task at submission time.
type TaskDecorator interface {
	Wrap(ctx context.Context, task func(context.Context)) func(context.Context)
}

// Option configures a Pool.
type Option func(*Pool)

// WithDecorator applies d to every submitted task.
func WithDecorator(d TaskDecorator) Option {
	return func(p *Pool) {
		p.decorator = d
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics reports task outcomes and load to m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

type task struct {
	id        id.TaskID
	fn        func(context.Context)
	submitted time.Time
}

// Pool is a bounded worker pool. Core workers are started on demand and
// live until shutdown; workers beyond core are started only when the queue
// is full and retire after KeepAlive without work.
//
// Every worker owns one trace slot for its whole life, bound to the context
// its tasks receive.
type Pool struct {
	cfg       Config
	registry  *tracing.Registry
	decorator TaskDecorator
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	queue chan task

	mu      sync.Mutex
	workers int
	seq     int
	closed  bool

	wg sync.WaitGroup
}

// New creates a pool. No worker is started until the first submission.
func New(cfg Config, registry *tracing.Registry, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:      cfg,
		registry: registry,
		logger:   zap.NewNop(),
		queue:    make(chan task, cfg.QueueCapacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("executor", cfg.NamePrefix))
	return p, nil
}

// Execute submits fn. With a decorator configured, the state of the
// goroutine owning ctx is captured here, before fn is queued.
//
// When the pool is saturated, fn is rejected with ErrRejected or, under
// PolicyCallerRuns, run on the calling goroutine with ctx before Execute
// returns.
func (p *Pool) Execute(ctx context.Context, fn func(context.Context)) error {
	if p.decorator != nil {
		fn = p.decorator.Wrap(ctx, fn)
	}
	t := task{id: id.NewTaskID(), fn: fn, submitted: time.Now()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrShutdown
	}
	if p.workers < p.cfg.CoreSize {
		p.startWorker(&t, true)
		p.mu.Unlock()
		return nil
	}
	select {
	case p.queue <- t:
		p.mu.Unlock()
		p.reportLoad()
		return nil
	default:
	}
	if p.workers < p.cfg.MaxSize {
		p.startWorker(&t, false)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.reject(ctx, t)
}

func (p *Pool) reject(ctx context.Context, t task) error {
	if p.cfg.Rejection == PolicyCallerRuns {
		p.logger.Debug("pool saturated, running on caller", zap.String("task_id", t.id.String()))
		p.invoke(ctx, p.logger, t, "caller_ran")
		return nil
	}

	p.logger.Warn("task rejected",
		zap.String("task_id", t.id.String()),
		zap.Int("queue_capacity", p.cfg.QueueCapacity),
	)
	if p.metrics != nil {
		p.metrics.RecordTask(p.cfg.NamePrefix, "rejected", 0)
	}
	return ErrRejected
}

// startWorker must be called with p.mu held.
func (p *Pool) startWorker(first *task, core bool) {
	p.workers++
	p.seq++
	name := fmt.Sprintf("%s%d", p.cfg.NamePrefix, p.seq)

	p.wg.Add(1)
	go p.work(name, *first, core)
}

func (p *Pool) work(name string, first task, core bool) {
	defer p.wg.Done()

	slot := p.registry.Acquire()
	defer p.registry.Release(slot)

	ctx := withWorkerName(tracing.WithSlot(context.Background(), slot), name)
	logger := p.logger.With(zap.String("worker", name), zap.Uint64("slot", slot.ID()))
	logger.Debug("worker started", zap.Bool("core", core))
	p.reportLoad()

	p.invoke(ctx, logger, first, "completed")

	var idle *time.Timer
	if !core {
		idle = time.NewTimer(p.cfg.KeepAlive)
		defer idle.Stop()
	}

	for {
		var (
			t  task
			ok bool
		)
		if core {
			t, ok = <-p.queue
		} else {
			select {
			case t, ok = <-p.queue:
			case <-idle.C:
				p.exit(logger, "idle")
				return
			}
		}
		if !ok {
			p.exit(logger, "shutdown")
			return
		}

		if p.metrics != nil {
			p.metrics.RecordQueueWait(p.cfg.NamePrefix, time.Since(t.submitted))
		}
		p.invoke(ctx, logger, t, "completed")

		if idle != nil {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.cfg.KeepAlive)
		}
	}
}

func (p *Pool) exit(logger *zap.Logger, reason string) {
	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
	logger.Debug("worker stopped", zap.String("reason", reason))
	p.reportLoad()
}

// invoke runs t, containing a panic so the worker survives it.
func (p *Pool) invoke(ctx context.Context, logger *zap.Logger, t task, outcome string) {
	start := time.Now()

	var pc panics.Catcher
	pc.Try(func() { t.fn(ctx) })

	if rec := pc.Recovered(); rec != nil {
		outcome = "panicked"
		logger.Error("task panicked",
			zap.String("task_id", t.id.String()),
			zap.Error(rec.AsError()),
			zap.ByteString("stack", rec.Stack),
		)
	}
	if p.metrics != nil {
		p.metrics.RecordTask(p.cfg.NamePrefix, outcome, time.Since(start))
	}
}

func (p *Pool) reportLoad() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetExecutorLoad(p.cfg.NamePrefix, p.Workers(), p.Queued())
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Shutdown stops accepting tasks and waits until every queued task has run
// and every worker has exited, or ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("executor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}

type workerKey struct{}

func withWorkerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerKey{}, name)
}

// WorkerName returns the name of the pool worker running the task that
// received ctx, or "" outside a pool worker.
func WorkerName(ctx context.Context) string {
	name, _ := ctx.Value(workerKey{}).(string)
	return name
}
