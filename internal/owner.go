package internal

type Owner struct {
	rt *Runtime

	// cleanup functions run once, then cleared
	cleanups []func()

	// dispose listeners run every time Dispose is called
	disposers []func()

	// panic handlers
	catchers []func(any)

	// reactive nodes owned directly by this owner, made inert on dispose
	nodes []*node

	parent   *Owner
	children []*Owner

	disposed bool
}

func (r *Runtime) NewOwner() *Owner {
	r.lock()
	defer r.unlock()

	return r.newOwner()
}

// newOwner creates an owner parented to the caller's current owner.
// Callers must hold the runtime lock.
func (r *Runtime) newOwner() *Owner {
	o := &Owner{
		rt:     r,
		parent: r.tracker().owner,
	}

	if o.parent != nil {
		o.parent.children = append(o.parent.children, o)
	}

	return o
}

// adopt registers a node for disposal with this owner.
func (o *Owner) adopt(n *node) {
	o.nodes = append(o.nodes, n)
}

// Run executes fn with this owner as the ambient owner. Panics inside fn are
// routed to the nearest OnError listener up the owner chain, or re-raised.
func (o *Owner) Run(fn func() error) (err error) {
	r := o.rt

	r.lock()
	defer r.unlock()

	defer func() {
		if p := recover(); p != nil {
			o.handle(p)
		}
	}()

	t := r.tracker()
	prev := t.owner
	t.owner = o
	defer func() { t.owner = prev }()

	return fn()
}

// Dispose tears down children (most recent first), runs cleanups and dispose
// listeners, and makes every owned node inert.
func (o *Owner) Dispose() {
	r := o.rt

	r.lock()
	defer r.unlock()

	o.dispose()
}

func (o *Owner) dispose() {
	o.disposeChildren()
	o.runCleanups()

	for _, fn := range o.disposers {
		fn()
	}

	for _, n := range o.nodes {
		n.flags |= FlagDisposed
	}

	o.disposed = true
}

func (o *Owner) disposeChildren() {
	for i := len(o.children) - 1; i >= 0; i-- {
		o.children[i].dispose()
	}
	o.children = nil
}

func (o *Owner) runCleanups() {
	cleanups := o.cleanups
	o.cleanups = nil

	for _, fn := range cleanups {
		fn()
	}
}

// handle routes a panic to the nearest owner with an OnError listener.
func (o *Owner) handle(p any) {
	for cur := o; cur != nil; cur = cur.parent {
		if len(cur.catchers) > 0 {
			for _, fn := range cur.catchers {
				fn(p)
			}
			return
		}
	}

	panic(p)
}

func (o *Owner) OnCleanup(fn func()) {
	o.cleanups = append(o.cleanups, fn)
}

func (o *Owner) OnDispose(fn func()) {
	o.disposers = append(o.disposers, fn)
}

func (o *Owner) OnError(fn func(any)) {
	o.catchers = append(o.catchers, fn)
}
