package services

import (
	"encoding/json"
	"fmt"
)

// Implementation binds a definition's shape to a factory. The factory runs
// exactly once per manager, at first resolution, and may resolve other
// services of the same manager through the Context. It must not have UI side
// effects; kicking off asynchronous loads that write into signals later is
// fine.
type Implementation[S, C any] struct {
	factory func(*Context, C) (S, error)
}

// Implement associates a factory with a definition.
func Implement[S, C any](_ Definition[S], factory func(*Context, C) (S, error)) Implementation[S, C] {
	return Implementation[S, C]{factory: factory}
}

// Binding pairs a definition with an implementation and its config, ready to
// hand to NewManager.
type Binding struct {
	k         *key
	construct func(*Context) (any, error)
}

// Bind creates a binding with an in-process config value.
func Bind[S, C any](def Definition[S], impl Implementation[S, C], cfg C) Binding {
	return Binding{
		k: def.k,
		construct: func(ctx *Context) (any, error) {
			return impl.factory(ctx, cfg)
		},
	}
}

// BindJSON creates a binding whose config arrives in two parts: raw is the
// serializable part (as produced by a server-rendering phase), and attach
// fills in the collaborators that cannot travel as data — callbacks, backends,
// loggers. Both are merged before the factory ever runs.
func BindJSON[S, C any](def Definition[S], impl Implementation[S, C], raw []byte, attach func(*C)) (Binding, error) {
	var cfg C

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Binding{}, fmt.Errorf("services: decode %s config: %w", def.k.name, err)
		}
	}

	if attach != nil {
		attach(&cfg)
	}

	return Bind(def, impl, cfg), nil
}
