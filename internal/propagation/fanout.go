package propagation

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
)

// FanOut runs a per-item action concurrently, with every item seeing the
// caller's trace context and request scope.
type FanOut struct {
	registry    *tracing.Registry
	parallelism int
	observe     func(onOrigin bool)
}

// FanOutOption configures a FanOut.
type FanOutOption func(*FanOut)

// WithParallelism bounds the number of goroutines working on one call,
// the caller included. Zero or less means GOMAXPROCS.
func WithParallelism(n int) FanOutOption {
	return func(f *FanOut) {
		f.parallelism = n
	}
}

// WithItemObserver registers a callback invoked before each item runs.
func WithItemObserver(fn func(onOrigin bool)) FanOutOption {
	return func(f *FanOut) {
		f.observe = fn
	}
}

// NewFanOut creates a fan-out propagator.
func NewFanOut(registry *tracing.Registry, opts ...FanOutOption) *FanOut {
	f := &FanOut{registry: registry}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Parallelism returns the effective goroutine bound.
func (f *FanOut) Parallelism() int {
	if f.parallelism <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return f.parallelism
}

// originToken identifies the caller's slot as it was at capture time.
// A recycled or reset slot does not match.
type originToken struct {
	slot *tracing.Slot
	id   uint64
	gen  uint64
}

func (o originToken) matches(s *tracing.Slot) bool {
	return o.slot != nil && o.slot == s && o.id == s.ID() && o.gen == s.Generation()
}

// ForEach applies action to every item. Items are processed by the calling
// goroutine and up to Parallelism()-1 helpers, in no particular order.
//
// The caller's state is captured once. On every executing slot the request
// scope is installed and the snapshot is installed only if that slot holds
// no context of its own. Slots other than the caller's are cleaned after
// each item; the caller's state survives the call untouched.
//
// Once an item fails no further items are started. The returned error
// combines every item error. A panic in any item is re-raised on the
// caller after all goroutines have stopped.
func ForEach[T any](ctx context.Context, f *FanOut, items []T, action func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}

	var (
		origin originToken
		scope  *tracing.RequestScope
		snap   tracing.Snapshot
	)
	if slot, ok := tracing.SlotFrom(ctx); ok {
		origin = originToken{slot: slot, id: slot.ID(), gen: slot.Generation()}
		scope = slot.RequestScope()
		snap = slot.Snapshot()
	}

	var (
		cursor atomic.Int64
		stop   atomic.Bool
		mu     sync.Mutex
		errs   error
	)

	runItem := func(ctx context.Context, slot *tracing.Slot, item T) (err error) {
		onOrigin := origin.matches(slot)
		if !onOrigin {
			defer func() {
				slot.Remove()
				slot.ClearDiagnostics()
				slot.ResetRequestScope()
			}()
		}
		defer func() {
			if r := recover(); r != nil {
				stop.Store(true)
				panic(r)
			}
		}()

		if f.observe != nil {
			f.observe(onOrigin)
		}
		if scope != nil {
			slot.SetRequestScope(scope)
		}
		slot.InstallIfAbsent(snap)
		return action(ctx, item)
	}

	work := func(ctx context.Context) {
		slot, _ := tracing.SlotFrom(ctx)
		for !stop.Load() {
			i := int(cursor.Add(1)) - 1
			if i >= len(items) {
				return
			}
			if err := runItem(ctx, slot, items[i]); err != nil {
				stop.Store(true)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}
	}

	withSlot := func(ctx context.Context, fn func(context.Context)) {
		slot := f.registry.Acquire()
		defer f.registry.Release(slot)
		fn(tracing.WithSlot(ctx, slot))
	}

	base := context.WithoutCancel(ctx)
	helpers := min(f.Parallelism(), len(items)) - 1

	var wg conc.WaitGroup
	for i := 0; i < helpers; i++ {
		wg.Go(func() { withSlot(base, work) })
	}

	var pc panics.Catcher
	pc.Try(func() {
		if origin.slot != nil {
			work(ctx)
		} else {
			withSlot(ctx, work)
		}
	})

	helperPanic := wg.WaitAndRecover()
	pc.Repanic()
	if helperPanic != nil {
		panic(helperPanic)
	}
	return errs
}
