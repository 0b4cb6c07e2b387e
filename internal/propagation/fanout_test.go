package propagation

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
)

func TestForEachPropagatesToEveryItem(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, _ := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(4))

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := map[string]int{}
	err := ForEach(ctx, fan, items, func(ctx context.Context, _ int) error {
		scope, err := tracing.RequireRequestScope(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		seen[tracing.RequestIDFromContext(ctx)+" "+scope.Path]++
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"abc /orders": 100}, seen)
}

func TestForEachLeavesOriginIntact(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, origin := requestCtx(reg, "abc")
	scope := origin.RequestScope()
	fan := NewFanOut(reg, WithParallelism(3))

	err := ForEach(ctx, fan, []string{"a", "b", "c", "d", "e", "f"}, func(ctx context.Context, _ string) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", origin.Get().RequestID())
	assert.Equal(t, "abc", origin.Diagnostics()[tracing.RequestIDHeader])
	assert.Same(t, scope, origin.RequestScope())
	assert.Equal(t, int64(1), reg.Active())
}

func TestForEachSingleGoroutineRunsOnOrigin(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, origin := requestCtx(reg, "abc")

	var onOrigin, elsewhere atomic.Int32
	fan := NewFanOut(reg, WithParallelism(1), WithItemObserver(func(o bool) {
		if o {
			onOrigin.Add(1)
		} else {
			elsewhere.Add(1)
		}
	}))

	err := ForEach(ctx, fan, []int{1, 2, 3}, func(ctx context.Context, _ int) error {
		slot, ok := tracing.SlotFrom(ctx)
		require.True(t, ok)
		assert.Same(t, origin, slot)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), onOrigin.Load())
	assert.Equal(t, int32(0), elsewhere.Load())
	assert.True(t, origin.IsPresent())
}

func TestForEachSequentialItemsSeeContext(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, _ := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(1))

	var seen []string
	err := ForEach(ctx, fan, []int{1, 2}, func(ctx context.Context, _ int) error {
		seen = append(seen, tracing.RequestIDFromContext(ctx))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "abc"}, seen)
}

func TestForEachStaleOriginIsCleaned(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, origin := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(1))

	err := ForEach(ctx, fan, []int{1, 2}, func(ctx context.Context, i int) error {
		if i == 1 {
			// Resetting the origin changes its generation; it no longer
			// counts as the caller's slot.
			origin.Remove()
		}
		return nil
	})

	require.NoError(t, err)
	assert.False(t, origin.IsPresent())
	assert.Nil(t, origin.RequestScope())
}

func TestForEachHelpersAreCleaned(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, _ := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(4))

	err := ForEach(ctx, fan, make([]int, 50), func(ctx context.Context, _ int) error {
		runtime.Gosched()
		return nil
	})
	require.NoError(t, err)

	// Released helper slots come back empty.
	for i := 0; i < 4; i++ {
		slot := reg.Acquire()
		assert.False(t, slot.IsPresent())
		assert.Empty(t, slot.Diagnostics())
		assert.Nil(t, slot.RequestScope())
	}
}

func TestForEachWithoutCallerSlot(t *testing.T) {
	reg := tracing.NewRegistry()
	fan := NewFanOut(reg, WithParallelism(2))

	var count atomic.Int32
	err := ForEach(context.Background(), fan, []int{1, 2, 3, 4}, func(ctx context.Context, _ int) error {
		_, ok := tracing.SlotFrom(ctx)
		assert.True(t, ok)
		assert.Empty(t, tracing.FromContext(ctx))
		count.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(4), count.Load())
	assert.Equal(t, int64(0), reg.Active())
}

func TestForEachErrors(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, origin := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(1))
	boom := errors.New("boom")

	var ran []int
	err := ForEach(ctx, fan, []int{1, 2, 3, 4}, func(ctx context.Context, i int) error {
		ran = append(ran, i)
		if i == 2 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, ran)
	assert.True(t, origin.IsPresent())
}

func TestForEachCombinesConcurrentErrors(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, _ := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(2))
	errA := errors.New("a")
	errB := errors.New("b")

	// Both goroutines pick an item before either fails.
	var start sync.WaitGroup
	start.Add(2)
	err := ForEach(ctx, fan, []error{errA, errB}, func(ctx context.Context, e error) error {
		start.Done()
		start.Wait()
		return e
	})

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestForEachPanicReachesCaller(t *testing.T) {
	reg := tracing.NewRegistry()
	ctx, origin := requestCtx(reg, "abc")
	fan := NewFanOut(reg, WithParallelism(4))

	assert.Panics(t, func() {
		_ = ForEach(ctx, fan, []int{1, 2, 3, 4, 5, 6, 7, 8}, func(ctx context.Context, i int) error {
			if i == 5 {
				panic("boom")
			}
			return nil
		})
	})

	assert.Equal(t, "abc", origin.Get().RequestID())
	assert.Equal(t, int64(1), reg.Active())
}

func TestForEachEmpty(t *testing.T) {
	fan := NewFanOut(tracing.NewRegistry())

	err := ForEach(context.Background(), fan, []int(nil), func(ctx context.Context, _ int) error {
		t.Error("action should not run")
		return nil
	})

	assert.NoError(t, err)
}

func TestFanOutParallelismDefault(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), NewFanOut(nil).Parallelism())
	assert.Equal(t, 3, NewFanOut(nil, WithParallelism(3)).Parallelism())
}
