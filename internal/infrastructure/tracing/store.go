package tracing

import (
	"context"
	"sync"
	"sync/atomic"
)

// Slot is the trace context store of one worker goroutine.
//
// A slot is owned by a single goroutine at a time: the request goroutine
// between Filter entry and exit, or a pool worker for its whole life. Code
// running on that goroutine reaches it through SlotFrom(ctx). The mutex
// makes each operation atomic; it is never contended in correct use.
type Slot struct {
	id uint64

	mu    sync.Mutex
	gen   uint64
	trace TraceContext
	diag  map[string]string
	scope *RequestScope
}

func newSlot(id uint64) *Slot {
	return &Slot{
		id:    id,
		trace: TraceContext{},
		diag:  map[string]string{},
	}
}

// ID returns the slot identity. Identities are reused when the registry
// recycles a slot; pair it with Generation to tell scopes apart.
func (s *Slot) ID() uint64 {
	return s.id
}

// Generation returns a counter bumped every time the slot is reset.
func (s *Slot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Set replaces the slot's trace context with a copy of tc.
func (s *Slot) Set(tc TraceContext) {
	s.mu.Lock()
	s.trace = tc.Clone()
	s.mu.Unlock()
}

// Get returns a copy of the slot's trace context. Never nil.
func (s *Slot) Get() TraceContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trace.Clone()
}

// IsPresent reports whether the slot holds a non-empty trace context.
func (s *Slot) IsPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trace) > 0
}

// Remove resets the trace context to empty.
func (s *Slot) Remove() {
	s.mu.Lock()
	s.trace = TraceContext{}
	s.gen++
	s.mu.Unlock()
}

// Snapshot captures the current trace context.
func (s *Slot) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewSnapshot(s.trace)
}

// PutDiagnostics mirrors values into the diagnostic logging context.
func (s *Slot) PutDiagnostics(values map[string]string) {
	s.mu.Lock()
	for k, v := range values {
		s.diag[DiagnosticKey(k)] = v
	}
	s.mu.Unlock()
}

// Diagnostics returns a copy of the diagnostic logging context.
func (s *Slot) Diagnostics() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.diag))
	for k, v := range s.diag {
		out[k] = v
	}
	return out
}

// ClearDiagnostics empties the diagnostic logging context.
func (s *Slot) ClearDiagnostics() {
	s.mu.Lock()
	s.diag = map[string]string{}
	s.mu.Unlock()
}

// SetRequestScope installs the request-scope handle.
func (s *Slot) SetRequestScope(scope *RequestScope) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
}

// RequestScope returns the installed request-scope handle, or nil.
func (s *Slot) RequestScope() *RequestScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// ResetRequestScope removes the request-scope handle.
func (s *Slot) ResetRequestScope() {
	s.SetRequestScope(nil)
}

// InstallIfAbsent installs snap and mirrors it into the diagnostic context,
// but only when both are empty. The check and the write happen under one
// lock. Reports whether the snapshot was installed.
func (s *Slot) InstallIfAbsent(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trace) > 0 || len(s.diag) > 0 {
		return false
	}
	s.trace = snap.Context()
	for k, v := range snap.values {
		s.diag[DiagnosticKey(k)] = v
	}
	return true
}

// SlotState is a saved copy of everything a slot holds.
type SlotState struct {
	trace TraceContext
	diag  map[string]string
	scope *RequestScope
}

// Save captures the slot state so it can be put back with Restore.
func (s *Slot) Save() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	diag := make(map[string]string, len(s.diag))
	for k, v := range s.diag {
		diag[k] = v
	}
	return SlotState{trace: s.trace.Clone(), diag: diag, scope: s.scope}
}

// Restore puts back a state captured with Save. Restoring an empty state
// counts as a reset and bumps the generation.
func (s *Slot) Restore(st SlotState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = st.trace.Clone()
	s.diag = make(map[string]string, len(st.diag))
	for k, v := range st.diag {
		s.diag[k] = v
	}
	s.scope = st.scope
	if len(st.trace) == 0 {
		s.gen++
	}
}

// clear wipes the slot entirely.
func (s *Slot) clear() {
	s.mu.Lock()
	s.trace = TraceContext{}
	s.diag = map[string]string{}
	s.scope = nil
	s.gen++
	s.mu.Unlock()
}

// Registry hands out slots. One registry is built at process start and
// passed to every component that needs to bind a goroutine to a slot.
type Registry struct {
	next   atomic.Uint64
	active atomic.Int64

	mu   sync.Mutex
	free []*Slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire returns an empty slot for exclusive use by the calling goroutine.
// Released slots are recycled, identity included.
func (r *Registry) Acquire() *Slot {
	r.active.Add(1)

	r.mu.Lock()
	if n := len(r.free); n > 0 {
		s := r.free[n-1]
		r.free = r.free[:n-1]
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	return newSlot(r.next.Add(1))
}

// Release wipes the slot and makes it available to Acquire again.
// The caller must not touch the slot afterwards.
func (r *Registry) Release(s *Slot) {
	if s == nil {
		return
	}
	s.clear()
	r.active.Add(-1)

	r.mu.Lock()
	r.free = append(r.free, s)
	r.mu.Unlock()
}

// Active returns the number of slots currently acquired.
func (r *Registry) Active() int64 {
	return r.active.Load()
}

type contextKey int

const slotKey contextKey = iota

// WithSlot binds slot to ctx. Work receiving the returned context runs
// against that slot.
func WithSlot(ctx context.Context, slot *Slot) context.Context {
	return context.WithValue(ctx, slotKey, slot)
}

// SlotFrom returns the slot bound to ctx.
func SlotFrom(ctx context.Context) (*Slot, bool) {
	if ctx == nil {
		return nil, false
	}
	slot, ok := ctx.Value(slotKey).(*Slot)
	return slot, ok && slot != nil
}

// FromContext returns the trace context of the slot bound to ctx, or an
// empty context when there is none.
func FromContext(ctx context.Context) TraceContext {
	if slot, ok := SlotFrom(ctx); ok {
		return slot.Get()
	}
	return TraceContext{}
}

// RequestIDFromContext is a convenience accessor for the request identifier.
func RequestIDFromContext(ctx context.Context) string {
	return FromContext(ctx).RequestID()
}
