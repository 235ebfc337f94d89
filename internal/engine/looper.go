package engine

import (
	"fmt"
	"sync"
)

// Looper is the affinity context: one goroutine running tasks in FIFO
// order. Receivers are started and closed on it, so a binder that is not
// thread-safe only ever sees those calls from a single goroutine.
//
// The queue is unbounded so Post never blocks.
//
// Thread-safety: Post, Invoke, Execute and Close may be called from any
// goroutine. Invoke and Close must not be called from a task running on
// the same Looper; they wait for the loop and would deadlock.
type Looper struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
	done   chan struct{}
}

// NewLooper starts a looper goroutine.
func NewLooper() *Looper {
	l := &Looper{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn. Returns false if the looper is closed.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)

	// Non-blocking: the size-1 buffer coalesces wakeups.
	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Execute queues fn, dropping it if the looper is closed. It lets a
// Looper serve as an expr.Executor.
func (l *Looper) Execute(fn func()) {
	l.Post(fn)
}

// Invoke runs fn on the looper and waits for it to return. A panic in fn
// is re-raised on the caller's goroutine as an error wrapping the original
// value when that value is an error.
func (l *Looper) Invoke(fn func()) error {
	done := make(chan struct{})
	var panicked any
	ok := l.Post(func() {
		defer close(done)
		defer func() { panicked = recover() }()
		fn()
	})
	if !ok {
		return ErrLooperClosed
	}
	<-done
	if panicked != nil {
		if err, ok := panicked.(error); ok {
			panic(fmt.Errorf("looper task panicked: %w", err))
		}
		panic(fmt.Errorf("looper task panicked: %v", panicked))
	}
	return nil
}

// Len returns the number of queued tasks.
func (l *Looper) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Close stops accepting tasks, runs the ones already queued, and waits for
// the goroutine to exit. Safe to call more than once.
func (l *Looper) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.signal)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		fn, ok, closed := l.next()
		if ok {
			fn()
			continue
		}
		if closed {
			return
		}
		<-l.signal
	}
}

func (l *Looper) next() (fn func(), ok bool, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false, l.closed
	}
	fn = l.tasks[0]
	// Clear the slot so the closure can be collected.
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true, l.closed
}
