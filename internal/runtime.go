package internal

import (
	"sync"
	"sync/atomic"
)

// Runtime owns a reactive graph. Nodes are pinned to the runtime they were
// created in; every graph operation happens under the runtime's lock, so a
// goroutine other than the creating one may safely write a signal (an I/O
// completion publishing its result, typically).
type Runtime struct {
	mu sync.Mutex

	// goroutine currently holding mu, for reentrant acquisition
	holder atomic.Int64
	depth  int

	// goroutine the runtime was created in; its tracker is the only one
	// kept across lock sections
	home int64

	trackers map[int64]*Tracker

	queue      []*Computed
	settled    []func()
	batchDepth int
	flushing   bool
}

func NewRuntime() *Runtime {
	return &Runtime{
		home:     gid(),
		trackers: make(map[int64]*Tracker),
	}
}

// lock acquires the runtime lock, reentrant within a goroutine. Reads and
// writes performed inside an effect or computed re-enter without deadlock.
func (r *Runtime) lock() {
	id := gid()

	if r.holder.Load() == id {
		r.depth++
		return
	}

	r.mu.Lock()
	r.holder.Store(id)
	r.depth = 1
}

func (r *Runtime) unlock() {
	r.depth--
	if r.depth != 0 {
		return
	}

	// a tracker's state never outlives a lock section (runAs, Run, and
	// Untrack all restore what they swapped), so visiting goroutines don't
	// need theirs kept around
	if id := r.holder.Load(); id != r.home {
		delete(r.trackers, id)
	}

	r.holder.Store(0)
	r.mu.Unlock()
}

func (r *Runtime) enqueue(c *Computed) {
	r.queue = append(r.queue, c)
}

// flush runs queued effects until none remain, then settled callbacks.
// Effects scheduled by other effects (or by settled callbacks) join the same
// flush. Nested calls while a flush or batch is in progress return
// immediately; the outer loop picks up whatever they scheduled.
func (r *Runtime) flush() {
	if r.batchDepth > 0 || r.flushing {
		return
	}

	r.flushing = true
	defer func() { r.flushing = false }()

	for {
		for len(r.queue) > 0 {
			c := r.queue[0]
			r.queue = r.queue[1:]

			c.n.flags &^= FlagQueued
			if c.n.flags&FlagDisposed != 0 {
				continue
			}

			c.refresh()
		}

		if len(r.settled) == 0 {
			return
		}

		callbacks := r.settled
		r.settled = nil
		for _, fn := range callbacks {
			fn()
		}
	}
}

// NewBatch coalesces writes made inside fn; effects run once at the end of
// the outermost batch.
func (r *Runtime) NewBatch(fn func()) {
	r.lock()
	defer r.unlock()

	r.batchDepth++

	defer func() {
		r.batchDepth--
		if r.batchDepth == 0 {
			r.flush()
		}
	}()

	fn()
}

// OnSettled registers fn to run once the current (or next) flush has fully
// drained, including effects chained off other effects.
func (r *Runtime) OnSettled(fn func()) {
	r.lock()
	defer r.unlock()

	r.settled = append(r.settled, fn)
}
