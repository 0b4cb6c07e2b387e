package tracing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotGetNeverNil(t *testing.T) {
	slot := NewRegistry().Acquire()

	tc := slot.Get()
	require.NotNil(t, tc)
	assert.Empty(t, tc)
	assert.False(t, slot.IsPresent())

	slot.Set(nil)
	assert.NotNil(t, slot.Get())
	assert.False(t, slot.IsPresent())
}

func TestSlotSetGetRemove(t *testing.T) {
	slot := NewRegistry().Acquire()

	slot.Set(TraceContext{RequestIDHeader: "abc"})
	assert.True(t, slot.IsPresent())
	assert.Equal(t, "abc", slot.Get().RequestID())

	gen := slot.Generation()
	slot.Remove()

	assert.False(t, slot.IsPresent())
	assert.NotNil(t, slot.Get())
	assert.Equal(t, gen+1, slot.Generation())
}

func TestSlotHandsOutCopies(t *testing.T) {
	slot := NewRegistry().Acquire()

	in := TraceContext{RequestIDHeader: "abc"}
	slot.Set(in)
	in[RequestIDHeader] = "mutated"

	out := slot.Get()
	out[RequestIDHeader] = "mutated too"

	assert.Equal(t, "abc", slot.Get().RequestID())
}

func TestSlotDiagnostics(t *testing.T) {
	slot := NewRegistry().Acquire()

	slot.PutDiagnostics(map[string]string{"X-Request-Source": "edge", RequestIDHeader: "abc"})

	assert.Equal(t, map[string]string{"X_Request_Source": "edge", RequestIDHeader: "abc"}, slot.Diagnostics())

	slot.ClearDiagnostics()
	assert.Empty(t, slot.Diagnostics())
}

func TestSlotInstallIfAbsent(t *testing.T) {
	snap := NewSnapshot(TraceContext{RequestIDHeader: "abc"})

	t.Run("empty slot", func(t *testing.T) {
		slot := NewRegistry().Acquire()
		assert.True(t, slot.InstallIfAbsent(snap))
		assert.Equal(t, "abc", slot.Get().RequestID())
		assert.Equal(t, "abc", slot.Diagnostics()[RequestIDHeader])
	})

	t.Run("context present", func(t *testing.T) {
		slot := NewRegistry().Acquire()
		slot.Set(TraceContext{RequestIDHeader: "own"})
		assert.False(t, slot.InstallIfAbsent(snap))
		assert.Equal(t, "own", slot.Get().RequestID())
	})

	t.Run("diagnostics present", func(t *testing.T) {
		slot := NewRegistry().Acquire()
		slot.PutDiagnostics(map[string]string{"user": "u1"})
		assert.False(t, slot.InstallIfAbsent(snap))
		assert.False(t, slot.IsPresent())
	})
}

func TestSlotSaveRestore(t *testing.T) {
	slot := NewRegistry().Acquire()
	scope := &RequestScope{Path: "/orders"}

	slot.Set(TraceContext{RequestIDHeader: "origin"})
	slot.PutDiagnostics(map[string]string{RequestIDHeader: "origin"})
	slot.SetRequestScope(scope)

	saved := slot.Save()

	slot.Set(TraceContext{RequestIDHeader: "task"})
	slot.PutDiagnostics(map[string]string{RequestIDHeader: "task"})
	slot.ResetRequestScope()

	slot.Restore(saved)

	assert.Equal(t, "origin", slot.Get().RequestID())
	assert.Equal(t, "origin", slot.Diagnostics()[RequestIDHeader])
	assert.Same(t, scope, slot.RequestScope())
}

func TestSlotRestoreEmptyState(t *testing.T) {
	slot := NewRegistry().Acquire()
	saved := slot.Save()
	gen := slot.Generation()

	slot.Set(TraceContext{RequestIDHeader: "task"})
	slot.Restore(saved)

	assert.False(t, slot.IsPresent())
	assert.Empty(t, slot.Diagnostics())
	assert.Greater(t, slot.Generation(), gen)
}

func TestRegistryRecyclesSlots(t *testing.T) {
	reg := NewRegistry()

	slot := reg.Acquire()
	assert.Equal(t, int64(1), reg.Active())

	slot.Set(TraceContext{RequestIDHeader: "abc"})
	slot.SetRequestScope(&RequestScope{})
	slot.PutDiagnostics(map[string]string{"k": "v"})
	gen := slot.Generation()

	reg.Release(slot)
	assert.Equal(t, int64(0), reg.Active())

	again := reg.Acquire()
	assert.Same(t, slot, again)
	assert.Equal(t, slot.ID(), again.ID())
	assert.False(t, again.IsPresent())
	assert.Nil(t, again.RequestScope())
	assert.Empty(t, again.Diagnostics())
	assert.Greater(t, again.Generation(), gen)
}

func TestRegistryUniqueIdentities(t *testing.T) {
	reg := NewRegistry()

	ids := make(map[uint64]bool)
	for i := 0; i < 10; i++ {
		slot := reg.Acquire()
		assert.False(t, ids[slot.ID()], "slot identity %d handed out twice", slot.ID())
		ids[slot.ID()] = true
	}
}

func TestContextNotVisibleAcrossSlots(t *testing.T) {
	reg := NewRegistry()
	a := reg.Acquire()
	a.Set(TraceContext{RequestIDHeader: "thread-a"})

	var seen TraceContext
	var present bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b := reg.Acquire()
		defer reg.Release(b)
		seen = b.Get()
		present = b.IsPresent()
	}()
	wg.Wait()

	assert.False(t, present)
	assert.Empty(t, seen)
	assert.Equal(t, "thread-a", a.Get().RequestID())
}

func TestSlotBinding(t *testing.T) {
	_, ok := SlotFrom(context.Background())
	assert.False(t, ok)
	assert.Empty(t, FromContext(context.Background()))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))

	slot := NewRegistry().Acquire()
	slot.Set(TraceContext{RequestIDHeader: "abc"})
	ctx := WithSlot(context.Background(), slot)

	got, ok := SlotFrom(ctx)
	require.True(t, ok)
	assert.Same(t, slot, got)
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}

func TestConcurrentSlotsAreIndependent(t *testing.T) {
	reg := NewRegistry()

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot := reg.Acquire()
			defer reg.Release(slot)

			want := string(rune('A' + i))
			for j := 0; j < 100; j++ {
				slot.Set(TraceContext{RequestIDHeader: want})
				if got := slot.Get().RequestID(); got != want {
					errs <- got
				}
				slot.Remove()
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("observed foreign context %q", got)
	}
	assert.Equal(t, int64(0), reg.Active())
}

func TestTraceContextViews(t *testing.T) {
	tc := TraceContext{RequestIDHeader: "abc"}

	h := tc.Header()
	assert.Equal(t, []string{"abc"}, h.Values(RequestIDHeader))
	assert.Equal(t, "abc", h.Get(RequestIDHeader))
	assert.Equal(t, "abc", h.Get("requestid"))

	m := tc.Map()
	m[RequestIDHeader] = "changed"
	assert.Equal(t, "abc", tc.RequestID())

	snap := NewSnapshot(tc)
	tc[RequestIDHeader] = "later"
	assert.Equal(t, "abc", snap.RequestID())
	assert.Equal(t, 1, snap.Len())
	assert.False(t, snap.IsEmpty())
}
