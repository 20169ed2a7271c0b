package internal

import "reflect"

type Signal struct {
	n node

	value any
}

func (r *Runtime) NewSignal(initial any) *Signal {
	s := &Signal{
		n:     node{rt: r},
		value: initial,
	}

	r.lock()
	defer r.unlock()

	if o := r.tracker().owner; o != nil {
		o.adopt(&s.n)
	}

	return s
}

func (s *Signal) graphNode() *node { return &s.n }

// signals are always current
func (s *Signal) update() {}

// Read returns the current value, registering a dependency edge when called
// from inside a computed's evaluation.
func (s *Signal) Read() any {
	r := s.n.rt

	r.lock()
	defer r.unlock()

	r.track(s)

	return s.value
}

// Write stores v and synchronously re-runs every affected effect before
// returning (unless batching). Writes to disposed signals are discarded.
func (s *Signal) Write(v any) {
	r := s.n.rt

	r.lock()
	defer r.unlock()

	if s.n.flags&FlagDisposed != 0 {
		return
	}

	if isEqual(s.value, v) {
		return
	}

	s.value = v
	s.n.version++
	s.n.invalidate()

	r.flush()
}

// Update applies fn to the current value and stores the result, as one
// atomic step with respect to all other reads and writes. Returning a value
// equal to the current one leaves the signal untouched.
func (s *Signal) Update(fn func(any) any) {
	r := s.n.rt

	r.lock()
	defer r.unlock()

	if s.n.flags&FlagDisposed != 0 {
		return
	}

	v := fn(s.value)
	if isEqual(s.value, v) {
		return
	}

	s.value = v
	s.n.version++
	s.n.invalidate()

	r.flush()
}

// isEqual compares without panicking on uncomparable types; two values of an
// uncomparable type are always considered distinct.
func isEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}

	return a == b
}
