// Package services implements a scoped service container: named service
// definitions, factory-backed implementations, and a Manager that resolves
// one instance per definition within its scope. Services declare reactive
// state with loom signals; a manager's teardown disposes all of it together.
package services

import (
	"fmt"
	"sync"
)

// key is the identity of a definition. Bindings and instances are keyed by
// this pointer, so two definitions never collide even across packages.
type key struct {
	name string
}

// Definition declares a named service contract with shape S, without an
// implementation. Definitions are immutable and shared across managers.
type Definition[S any] struct {
	k *key
}

func (d Definition[S]) Name() string { return d.k.name }

var defined sync.Map // name → struct{}

// Define declares a service contract. Defining the same name twice is a
// programming error and panics: with distinct shapes there is no single
// identity a second call could meaningfully return.
func Define[S any](name string) Definition[S] {
	if _, loaded := defined.LoadOrStore(name, struct{}{}); loaded {
		panic(fmt.Sprintf("services: service %q already defined", name))
	}

	return Definition[S]{k: &key{name: name}}
}
