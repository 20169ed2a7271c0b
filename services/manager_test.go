package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom"
)

type counter struct {
	Count *loom.Signal[int]
}

type doubler struct {
	Double *loom.Computed[int]
}

var (
	counterDef = Define[*counter]("test-counter")
	doublerDef = Define[*doubler]("test-doubler")
)

var counterImpl = Implement(counterDef, func(_ *Context, initial int) (*counter, error) {
	return &counter{Count: loom.NewSignal(initial)}, nil
})

var doublerImpl = Implement(doublerDef, func(ctx *Context, _ struct{}) (*doubler, error) {
	c, err := GetService(ctx, counterDef)
	if err != nil {
		return nil, err
	}

	return &doubler{
		Double: loom.NewComputed(func() int { return c.Count.Read() * 2 }),
	}, nil
})

func TestManager(t *testing.T) {
	t.Run("constructs once and memoizes", func(t *testing.T) {
		def := Define[*counter]("memoized-counter")

		constructed := 0
		impl := Implement(def, func(_ *Context, initial int) (*counter, error) {
			constructed++
			return &counter{Count: loom.NewSignal(initial)}, nil
		})

		m := NewManager(Bind(def, impl, 5))
		defer m.Close()

		first, err := Resolve(m, def)
		require.NoError(t, err)

		second, err := Resolve(m, def)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, constructed)
		assert.Equal(t, 5, first.Count.Read())
	})

	t.Run("resolves dependencies within the same scope", func(t *testing.T) {
		m := NewManager(
			Bind(counterDef, counterImpl, 3),
			Bind(doublerDef, doublerImpl, struct{}{}),
		)
		defer m.Close()

		d, err := Resolve(m, doublerDef)
		require.NoError(t, err)
		assert.Equal(t, 6, d.Double.Read())

		// dependent reactive state is shared through the scope
		c, err := Resolve(m, counterDef)
		require.NoError(t, err)
		c.Count.Write(10)
		assert.Equal(t, 20, d.Double.Read())
	})

	t.Run("managers are isolated", func(t *testing.T) {
		def := Define[*counter]("isolated-counter")
		impl := Implement(def, func(_ *Context, initial int) (*counter, error) {
			return &counter{Count: loom.NewSignal(initial)}, nil
		})

		m1 := NewManager(Bind(def, impl, 0))
		m2 := NewManager(Bind(def, impl, 0))
		defer m1.Close()
		defer m2.Close()

		c1 := MustResolve(m1, def)
		c2 := MustResolve(m2, def)

		assert.NotSame(t, c1, c2)

		c1.Count.Write(42)
		assert.Equal(t, 42, c1.Count.Read())
		assert.Equal(t, 0, c2.Count.Read())
	})

	t.Run("detects construction cycles", func(t *testing.T) {
		typeA := Define[*counter]("cycle-a")
		typeB := Define[*counter]("cycle-b")

		implA := Implement(typeA, func(ctx *Context, _ struct{}) (*counter, error) {
			return GetService(ctx, typeB)
		})
		implB := Implement(typeB, func(ctx *Context, _ struct{}) (*counter, error) {
			return GetService(ctx, typeA)
		})

		m := NewManager(
			Bind(typeA, implA, struct{}{}),
			Bind(typeB, implB, struct{}{}),
		)
		defer m.Close()

		_, err := Resolve(m, typeA)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCircular)
		assert.Contains(t, err.Error(), "cycle-a -> cycle-b -> cycle-a")
	})

	t.Run("fails fast on unregistered definitions", func(t *testing.T) {
		def := Define[*counter]("never-bound")

		m := NewManager()
		defer m.Close()

		_, err := Resolve(m, def)
		assert.ErrorIs(t, err, ErrNotRegistered)
		assert.Contains(t, err.Error(), "never-bound")
	})

	t.Run("closed manager refuses resolution", func(t *testing.T) {
		def := Define[*counter]("closable-counter")
		impl := Implement(def, func(_ *Context, initial int) (*counter, error) {
			return &counter{Count: loom.NewSignal(initial)}, nil
		})

		m := NewManager(Bind(def, impl, 1))

		c := MustResolve(m, def)
		m.Close()

		_, err := Resolve(m, def)
		assert.ErrorIs(t, err, ErrClosed)

		// contained signals went inert with the scope
		c.Count.Write(99)
		assert.Equal(t, 1, c.Count.Read())
	})

	t.Run("factory errors are wrapped", func(t *testing.T) {
		def := Define[*counter]("failing-counter")

		boom := errors.New("backend unreachable")
		impl := Implement(def, func(_ *Context, _ struct{}) (*counter, error) {
			return nil, boom
		})

		m := NewManager(Bind(def, impl, struct{}{}))
		defer m.Close()

		_, err := Resolve(m, def)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failing-counter")
	})

	t.Run("duplicate definition name panics", func(t *testing.T) {
		Define[*counter]("taken-name")

		assert.Panics(t, func() {
			Define[*doubler]("taken-name")
		})
	})
}

func TestBindJSON(t *testing.T) {
	type notifierConfig struct {
		Label string `json:"label"`
		Limit int    `json:"limit"`

		// in-process collaborator, never serialized
		Notify func(string) `json:"-"`
	}

	type notifier struct {
		Fire func()
	}

	def := Define[*notifier]("json-notifier")
	impl := Implement(def, func(_ *Context, cfg notifierConfig) (*notifier, error) {
		return &notifier{
			Fire: func() { cfg.Notify(cfg.Label) },
		}, nil
	})

	var fired []string

	binding, err := BindJSON(def, impl, []byte(`{"label":"orders","limit":3}`), func(cfg *notifierConfig) {
		cfg.Notify = func(label string) { fired = append(fired, label) }
	})
	require.NoError(t, err)

	m := NewManager(binding)
	defer m.Close()

	n := MustResolve(m, def)
	n.Fire()

	assert.Equal(t, []string{"orders"}, fired)
}
