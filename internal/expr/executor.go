package expr

// Executor runs callbacks. Implementations decide on which goroutine.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// Inline runs every callback synchronously on the calling goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })
