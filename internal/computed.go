package internal

type Computed struct {
	n node

	// child owner for nodes and cleanups created during evaluation
	owner *Owner

	compute func() any
	value   any

	depsHead *link
	depsTail *link

	initialized bool
	isEffect    bool
}

func (r *Runtime) NewComputed(compute func() any) *Computed {
	c := &Computed{
		n:       node{rt: r, flags: FlagStale},
		compute: compute,
	}

	r.lock()
	defer r.unlock()

	c.owner = r.newOwner()
	c.owner.adopt(&c.n)

	return c
}

func (c *Computed) graphNode() *node { return &c.n }

func (c *Computed) update() { c.refresh() }

// Read returns the computed's value, re-evaluating first if a dependency
// changed since the last read.
func (c *Computed) Read() any {
	r := c.n.rt

	r.lock()
	defer r.unlock()

	c.refresh()
	r.track(c)

	return c.value
}

// refresh re-evaluates the computed if it is stale. A stale flag alone is not
// enough to recompute: each dependency is brought current first, and only a
// changed dependency version forces re-evaluation. This is what stops change
// propagation through computeds whose recomputed value is identical.
func (c *Computed) refresh() {
	if c.n.flags&FlagDisposed != 0 || c.n.flags&FlagStale == 0 {
		return
	}

	stale := !c.initialized
	if !stale {
		for l := c.depsHead; l != nil; l = l.nextDep {
			l.dep.update()

			if l.dep.graphNode().version != l.version {
				stale = true
				break
			}
		}
	}

	c.n.flags &^= FlagStale

	if stale {
		c.recompute()
	}
}

func (c *Computed) recompute() {
	r := c.n.rt

	// previous run's nested nodes and cleanups go first
	c.owner.disposeChildren()
	c.owner.runCleanups()
	c.clearDeps()

	prev := c.value
	c.initialized = true

	defer func() {
		if p := recover(); p != nil {
			c.owner.handle(p)
		}
	}()

	r.runAs(c, func() {
		c.value = c.compute()
	})

	if !isEqual(prev, c.value) {
		c.n.version++
	}
}

// linkTo records c's dependency on dep, stamping dep's current version.
func (c *Computed) linkTo(dep source) {
	// skip if dep is already the most recent dependency
	if c.depsTail != nil && c.depsTail.dep == dep {
		return
	}

	l := &link{dep: dep, sub: c, version: dep.graphNode().version}

	if c.depsTail == nil {
		c.depsHead = l
	} else {
		c.depsTail.nextDep = l
	}
	c.depsTail = l

	dep.graphNode().addSub(l)
}

func (c *Computed) clearDeps() {
	for l := c.depsHead; l != nil; {
		next := l.nextDep
		l.dep.graphNode().removeSub(l)
		l.nextDep = nil
		l = next
	}

	c.depsHead = nil
	c.depsTail = nil
}
