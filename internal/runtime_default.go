//go:build !wasm

package internal

import (
	"sync"

	"github.com/petermattis/goid"
)

// graphs maps goroutine ids to their ambient runtime. Only node creation
// consults it; after that, nodes carry their runtime with them, so a signal
// handed to another goroutine stays on its original graph.
var graphs sync.Map

func GetRuntime() *Runtime {
	id := goid.Get()

	if r, ok := graphs.Load(id); ok {
		return r.(*Runtime)
	}

	r, _ := graphs.LoadOrStore(id, NewRuntime())
	return r.(*Runtime)
}

func gid() int64 { return goid.Get() }
