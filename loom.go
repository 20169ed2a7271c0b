// Package loom is a fine-grained reactive state library: signals with
// dependency-tracked reads, lazily re-evaluated computeds, synchronous
// effects, and owner-scoped disposal. It is the foundation the services
// container and the collection filtering service are built on.
package loom

import "github.com/loomkit/loom/internal"

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

type Signal[T any] struct {
	signal *internal.Signal
}

// NewSignal creates a read/write reactive cell.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		internal.GetRuntime().NewSignal(initial),
	}
}

// Read returns the current value, registering a dependency when called inside
// a computed or effect.
func (s *Signal[T]) Read() T {
	return as[T](s.signal.Read())
}

// Write stores a new value and notifies dependents exactly once, before
// returning. Writing a value equal to the current one is a no-op, as is
// writing to a signal whose owner has been disposed.
func (s *Signal[T]) Write(v T) {
	s.signal.Write(v)
}

// Update applies fn to the current value and stores the result, atomically
// with respect to concurrent reads and writes. Returning the argument
// unchanged (same comparable value) leaves dependents untouched.
func (s *Signal[T]) Update(fn func(T) T) {
	s.signal.Update(func(v any) any {
		return fn(as[T](v))
	})
}

type Computed[T any] struct {
	computed *internal.Computed
}

// NewComputed creates a read-only signal derived from other signals. The
// function is evaluated lazily: a write to a dependency only marks the
// computed stale, and re-evaluation happens on the next Read.
func NewComputed[T any](compute func() T) *Computed[T] {
	return &Computed[T]{
		internal.GetRuntime().NewComputed(func() any {
			return compute()
		}),
	}
}

// Read returns the derived value, re-evaluating first if a dependency changed.
func (c *Computed[T]) Read() T {
	return as[T](c.computed.Read())
}

// NewEffect runs fn immediately and re-runs it whenever a dependency changes,
// at most once per write. Cleanups registered with OnCleanup inside fn run
// before each re-run and on disposal.
func NewEffect(fn func()) {
	internal.GetRuntime().NewEffect(fn)
}

// NewBatch coalesces signal writes made inside fn into a single update cycle
// instead of triggering updates after each write.
func NewBatch(fn func()) {
	internal.GetRuntime().NewBatch(fn)
}

// Untrack runs fn without registering any reactive dependencies.
func Untrack[T any](fn func() T) T {
	var result T
	internal.GetRuntime().Untrack(func() { result = fn() })
	return result
}

// OnCleanup registers fn to be called when the current owner is disposed.
func OnCleanup(fn func()) {
	internal.GetRuntime().OnCleanup(fn)
}

// OnSettled registers fn to run once the in-progress update cycle has fully
// drained, including effects chained off other effects.
func OnSettled(fn func()) {
	internal.GetRuntime().OnSettled(fn)
}

type Owner struct {
	owner *internal.Owner
}

// NewOwner creates a reactive owner. An owner manages the lifecycle of
// reactive nodes created within its context.
func NewOwner() *Owner {
	return &Owner{
		internal.GetRuntime().NewOwner(),
	}
}

// Run executes fn within the context of this owner. Each reactive node
// created inside fn becomes a child of the owner and is torn down by Dispose.
func (o *Owner) Run(fn func() error) error { return o.owner.Run(fn) }

// Dispose tears down this owner and all its children. Owned signals become
// inert: writes are discarded and effects never re-run.
func (o *Owner) Dispose() { o.owner.Dispose() }

// OnCleanup registers fn to be called once when the owner is disposed.
func (o *Owner) OnCleanup(fn func()) { o.owner.OnCleanup(fn) }

// OnDispose registers fn to be called each time Dispose is called.
func (o *Owner) OnDispose(fn func()) { o.owner.OnDispose(fn) }

// OnError registers fn to be called when a panic occurs within this owner.
// Without any error listener up the owner chain, the panic propagates.
func (o *Owner) OnError(fn func(any)) { o.owner.OnError(fn) }
