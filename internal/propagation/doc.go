/*
Package propagation moves a request's trace context to the goroutines that
work on its behalf.

Two mechanisms are provided:

  - Decorator wraps a single task. State is captured on the submitting
    goroutine when the task is wrapped, installed on whichever goroutine runs
    it, and the runner's slot is put back exactly as it was afterwards.
  - ForEach applies an action to many items concurrently. State is captured
    once; every helper goroutine gets the snapshot only if it holds no
    context of its own, and the caller's state is never cleaned.

Both read the caller's slot through the context.Context they are given:

	dec := propagation.NewDecorator(registry, resolver)
	fut := propagation.Supply(ctx, dec, pool, func(ctx context.Context) (string, error) {
		return tracing.RequestIDFromContext(ctx), nil
	})
	rid, err := fut.Get(ctx)

	fan := propagation.NewFanOut(registry, propagation.WithParallelism(4))
	err = propagation.ForEach(ctx, fan, orders, func(ctx context.Context, o Order) error {
		return ship(ctx, o)
	})
*/
package propagation
