//go:build wasm

package internal

// Wasm has no runtime parallelism, so one graph serves the whole process and
// the goroutine id degenerates to a constant.

var global = NewRuntime()

func GetRuntime() *Runtime { return global }

func gid() int64 { return 1 }
