package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/loomkit/loom"
)

var (
	// ErrClosed is returned when resolving from a closed manager.
	ErrClosed = errors.New("manager is closed")
	// ErrNotRegistered is returned when a definition has no binding in the
	// manager's scope.
	ErrNotRegistered = errors.New("service not registered")
	// ErrCircular is returned when two factories resolve each other during
	// construction.
	ErrCircular = errors.New("circular service dependency")
)

// Manager is one resolution scope: it owns at most one instance per
// definition and is the unit of lifetime. Two managers never share instances,
// even for identical definitions — services can only observe each other's
// reactive state when resolved from the same manager.
//
// Resolution is not safe for concurrent use; resolve services during scope
// setup, on one goroutine. Once resolved, instances are plain values and
// follow the concurrency rules of their own state.
type Manager struct {
	id    string
	owner *loom.Owner

	bindings  map[*key]Binding
	instances map[*key]any

	// definitions currently under construction, for cycle detection
	resolving []*key

	closed bool
}

// NewManager creates a scope holding the given bindings.
func NewManager(bindings ...Binding) *Manager {
	m := &Manager{
		id:        uuid.NewString(),
		owner:     loom.NewOwner(),
		bindings:  make(map[*key]Binding, len(bindings)),
		instances: make(map[*key]any, len(bindings)),
	}

	for _, b := range bindings {
		m.bindings[b.k] = b
	}

	return m
}

// ID identifies the scope in errors and logs.
func (m *Manager) ID() string { return m.id }

// Close tears the scope down: every contained signal becomes inert and all
// subsequent resolutions fail with ErrClosed. Owner cleanups registered by
// factories run child-first.
func (m *Manager) Close() {
	if m.closed {
		return
	}

	m.closed = true
	m.owner.Dispose()
}

// Context is handed to factories; it resolves sibling services within the
// same manager scope.
type Context struct {
	m *Manager
}

// Manager returns the scope the context resolves against.
func (c *Context) Manager() *Manager { return c.m }

// Resolve returns the manager's instance for def, constructing it on first
// call and returning the identical instance afterwards.
func Resolve[S any](m *Manager, def Definition[S]) (S, error) {
	var zero S

	v, err := m.resolve(def.k)
	if err != nil {
		return zero, err
	}

	s, ok := v.(S)
	if !ok {
		return zero, fmt.Errorf("services: %s: instance %T does not satisfy the declared shape", def.k.name, v)
	}

	return s, nil
}

// MustResolve is Resolve for wiring code where a failure is a programming
// error.
func MustResolve[S any](m *Manager, def Definition[S]) S {
	s, err := Resolve(m, def)
	if err != nil {
		panic(err)
	}

	return s
}

// GetService resolves another service from within a factory, against the
// same manager scope the factory is being constructed in.
func GetService[S any](ctx *Context, def Definition[S]) (S, error) {
	return Resolve(ctx.m, def)
}

func (m *Manager) resolve(k *key) (any, error) {
	if m.closed {
		return nil, fmt.Errorf("services: resolve %s: %w (manager %s)", k.name, ErrClosed, m.id)
	}

	if v, ok := m.instances[k]; ok {
		return v, nil
	}

	b, ok := m.bindings[k]
	if !ok {
		return nil, fmt.Errorf("services: resolve %s: %w (manager %s)", k.name, ErrNotRegistered, m.id)
	}

	for _, r := range m.resolving {
		if r == k {
			return nil, fmt.Errorf("services: resolve %s: %w: %s (manager %s)", k.name, ErrCircular, m.cyclePath(k), m.id)
		}
	}

	m.resolving = append(m.resolving, k)
	defer func() { m.resolving = m.resolving[:len(m.resolving)-1] }()

	var v any
	err := m.owner.Run(func() error {
		var err error
		v, err = b.construct(&Context{m: m})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("services: construct %s: %w", k.name, err)
	}

	m.instances[k] = v

	return v, nil
}

func (m *Manager) cyclePath(k *key) string {
	names := make([]string, 0, len(m.resolving)+1)
	for _, r := range m.resolving {
		names = append(names, r.name)
	}
	names = append(names, k.name)

	return strings.Join(names, " -> ")
}
