package expr

import "sync"

// listenerSet is a registry of callbacks addressable by id so that
// unsubscribe functions stay valid after other listeners are removed.
type listenerSet[T any] struct {
	next int
	fns  map[int]func(T)
}

func (l *listenerSet[T]) add(fn func(T)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	l.next++
	l.fns[l.next] = fn
	return l.next
}

func (l *listenerSet[T]) remove(id int) {
	delete(l.fns, id)
}

func (l *listenerSet[T]) len() int {
	return len(l.fns)
}

// snapshot returns the current callbacks so they can be invoked without
// holding the owner's lock.
func (l *listenerSet[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		out = append(out, fn)
	}
	return out
}

// once wraps an unsubscribe function so repeated calls are no-ops.
func once(fn func()) func() {
	var o sync.Once
	return func() { o.Do(fn) }
}
