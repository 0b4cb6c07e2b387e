package propagation

import (
	"context"

	"github.com/sourcegraph/conc/panics"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
)

// Runner executes a task on some worker goroutine. The context passed to
// the task is the worker's, bound to the worker's slot.
type Runner interface {
	Execute(ctx context.Context, task func(context.Context)) error
}

// Decorator carries the caller's trace context and request scope onto the
// goroutine that eventually runs a task.
type Decorator struct {
	registry *tracing.Registry
	resolver *tracing.Resolver
}

// NewDecorator creates a decorator. The registry provides slots for
// goroutines that run a wrapped task without one.
func NewDecorator(registry *tracing.Registry, resolver *tracing.Resolver) *Decorator {
	return &Decorator{registry: registry, resolver: resolver}
}

// captured is what a task takes with it from the submitting goroutine.
type captured struct {
	scope *tracing.RequestScope
	snap  tracing.Snapshot
}

// capture reads the origin state. It never fails: outside a request the
// result is empty, and inside a request that has not resolved yet the
// context is resolved from the request headers first.
func (d *Decorator) capture(ctx context.Context) captured {
	slot, ok := tracing.SlotFrom(ctx)
	if !ok {
		return captured{}
	}
	scope := slot.RequestScope()
	if !slot.IsPresent() && scope != nil {
		d.resolver.Resolve(slot, scope.Header())
	}
	return captured{scope: scope, snap: slot.Snapshot()}
}

// run executes fn with c installed on the slot bound to ctx, putting the
// slot back as it was afterwards. A goroutine without a slot gets a
// temporary one.
func (d *Decorator) run(ctx context.Context, c captured, fn func(context.Context)) {
	slot, ok := tracing.SlotFrom(ctx)
	if !ok {
		slot = d.registry.Acquire()
		defer d.registry.Release(slot)
		ctx = tracing.WithSlot(ctx, slot)
	}

	saved := slot.Save()
	defer slot.Restore(saved)

	tc := c.snap.Context()
	slot.SetRequestScope(c.scope)
	slot.Set(tc)
	slot.ClearDiagnostics()
	slot.PutDiagnostics(tc)

	fn(ctx)
}

// spawn runs fn on a new goroutine with its own slot. ctx values other than
// the slot binding and cancellation are kept.
func (d *Decorator) spawn(ctx context.Context, fn func(context.Context)) {
	base := context.WithoutCancel(ctx)
	go func() {
		slot := d.registry.Acquire()
		defer d.registry.Release(slot)
		fn(tracing.WithSlot(base, slot))
	}()
}

// Wrap captures the state of the goroutine owning ctx now and returns a
// task that installs it wherever it runs. The returned function may be
// called on any goroutine, including the submitting one.
func (d *Decorator) Wrap(ctx context.Context, task func(context.Context)) func(context.Context) {
	c := d.capture(ctx)
	return func(ctx context.Context) {
		d.run(ctx, c, task)
	}
}

// WrapValue is Wrap for tasks producing a result.
func WrapValue[T any](ctx context.Context, d *Decorator, task func(context.Context) (T, error)) func(context.Context) (T, error) {
	c := d.capture(ctx)
	return func(ctx context.Context) (v T, err error) {
		d.run(ctx, c, func(ctx context.Context) {
			v, err = task(ctx)
		})
		return v, err
	}
}

// Go runs task on a new goroutine with the caller's context installed.
// A panic in task is not recovered.
func (d *Decorator) Go(ctx context.Context, task func(context.Context)) {
	d.spawn(ctx, d.Wrap(ctx, task))
}

// Future is the pending result of an asynchronous task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Supply runs task asynchronously with the caller's context installed and
// returns its future. The task runs on r, or on a new goroutine when r is
// nil. A panic in task becomes the future's error once the worker has been
// cleaned up; a rejection by r becomes the future's error immediately.
func Supply[T any](ctx context.Context, d *Decorator, r Runner, task func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	wrapped := WrapValue(ctx, d, task)

	job := func(ctx context.Context) {
		var (
			v   T
			err error
			pc  panics.Catcher
		)
		pc.Try(func() { v, err = wrapped(ctx) })
		if rec := pc.Recovered(); rec != nil {
			var zero T
			v, err = zero, rec.AsError()
		}
		f.complete(v, err)
	}

	if r == nil {
		d.spawn(ctx, job)
		return f
	}
	if err := r.Execute(ctx, job); err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}

// Run is Supply for tasks without a result.
func Run(ctx context.Context, d *Decorator, r Runner, task func(context.Context) error) *Future[struct{}] {
	return Supply(ctx, d, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
}
