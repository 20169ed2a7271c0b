package internal

// NewEffect creates a computed that exists for its side effects. It runs
// immediately and re-runs during flush whenever a dependency changes, at
// most once per write.
func (r *Runtime) NewEffect(fn func()) *Computed {
	c := r.NewComputed(func() any {
		fn()
		return nil
	})
	c.isEffect = true

	r.lock()
	defer r.unlock()

	c.refresh()

	return c
}
