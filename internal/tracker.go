package internal

// Tracker holds one goroutine's ambient reactive state within a runtime:
// the computation currently evaluating (for dependency tracking) and the
// ambient owner (for lifecycle registration).
type Tracker struct {
	tracking bool

	current *Computed
	owner   *Owner
}

// tracker returns the calling goroutine's tracker, creating it on first use.
// Callers must hold the runtime lock.
func (r *Runtime) tracker() *Tracker {
	id := gid()

	t, ok := r.trackers[id]
	if !ok {
		t = &Tracker{tracking: true}
		r.trackers[id] = t
	}

	return t
}

// track registers dep as a dependency of the currently evaluating
// computation, if any. Reads from goroutines with no computation in this
// runtime are untracked, which also keeps links from crossing runtimes.
func (r *Runtime) track(dep source) {
	t := r.tracker()

	if !t.tracking || t.current == nil {
		return
	}

	if t.current == dep {
		return
	}

	t.current.linkTo(dep)
}

// runAs evaluates fn with c as the current computation and c's owner as the
// ambient owner.
func (r *Runtime) runAs(c *Computed, fn func()) {
	t := r.tracker()

	prevCurrent, prevOwner, prevTracking := t.current, t.owner, t.tracking
	t.current = c
	t.owner = c.owner
	t.tracking = true

	defer func() {
		t.current, t.owner, t.tracking = prevCurrent, prevOwner, prevTracking
	}()

	fn()
}

// Untrack runs fn without registering any dependencies.
func (r *Runtime) Untrack(fn func()) {
	r.lock()
	defer r.unlock()

	t := r.tracker()
	prev := t.tracking
	t.tracking = false
	defer func() { t.tracking = prev }()

	fn()
}

// OnCleanup registers fn with the ambient owner. It is a no-op outside an
// owner or effect scope.
func (r *Runtime) OnCleanup(fn func()) {
	r.lock()
	defer r.unlock()

	if o := r.tracker().owner; o != nil {
		o.OnCleanup(fn)
	}
}
