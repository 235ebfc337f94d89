package engine

import (
	"slices"
	"sync/atomic"

	"github.com/roach88/dyneval/internal/ir"
)

// receiverStatus places a receiver in exactly one of the pending, complete
// and invalid sets. Receivers start pending and never return to it.
type receiverStatus uint8

const (
	receiverPending receiverStatus = iota
	receiverComplete
	receiverInvalid
)

// evalState is an immutable snapshot of a session. Transitions build a new
// snapshot; a published snapshot is never written.
type evalState struct {
	data     *ir.Record
	statuses []receiverStatus // indexed by receiver index
	pending  int
	invalid  int
	version  uint64
}

func newEvalState(data *ir.Record, receivers int) *evalState {
	return &evalState{
		data:     data,
		statuses: make([]receiverStatus, receivers),
		pending:  receivers,
	}
}

// output is the record to emit for this snapshot, or nil when some
// receiver is still pending.
func (s *evalState) output() *ir.Record {
	if s.invalid > 0 {
		return ir.InvalidRecord
	}
	if s.pending == 0 {
		return s.data
	}
	return nil
}

func (s *evalState) with(index int, status receiverStatus, data *ir.Record) *evalState {
	next := &evalState{
		data:     data,
		statuses: slices.Clone(s.statuses),
		pending:  s.pending,
		invalid:  s.invalid,
	}
	next.count(s.statuses[index], -1)
	next.statuses[index] = status
	next.count(status, 1)
	return next
}

func (s *evalState) count(status receiverStatus, delta int) {
	switch status {
	case receiverPending:
		s.pending += delta
	case receiverInvalid:
		s.invalid += delta
	}
}

// receiverEvent is a message from a receiver to its session.
type receiverEvent interface {
	receiverIndex() int
}

// valueEvent carries a new value as a function over the current data, so it
// can be re-applied if the compare-and-swap has to retry.
type valueEvent struct {
	index int
	apply func(*ir.Record) *ir.Record
}

// invalidatedEvent reports that a receiver can no longer produce a value.
type invalidatedEvent struct {
	index int
}

func (e valueEvent) receiverIndex() int       { return e.index }
func (e invalidatedEvent) receiverIndex() int { return e.index }

// transition is the session's state-transition function. It must be pure:
// the state cell may call it more than once per event.
func transition(s *evalState, ev receiverEvent) *evalState {
	switch ev := ev.(type) {
	case valueEvent:
		return s.with(ev.index, receiverComplete, ev.apply(s.data))
	case invalidatedEvent:
		if s.statuses[ev.index] == receiverInvalid {
			return s
		}
		return s.with(ev.index, receiverInvalid, s.data)
	}
	return s
}

// stateCell holds the current snapshot of one session.
type stateCell struct {
	ptr     atomic.Pointer[evalState]
	changed chan struct{} // buffered, size 1
}

func newStateCell(initial *evalState) *stateCell {
	c := &stateCell{changed: make(chan struct{}, 1)}
	c.ptr.Store(initial)
	return c
}

func (c *stateCell) load() *evalState {
	return c.ptr.Load()
}

// update applies fn with compare-and-swap, retrying on conflict, and wakes
// the observer. Returns false if fn left the state unchanged.
func (c *stateCell) update(fn func(*evalState) *evalState) bool {
	for {
		old := c.ptr.Load()
		next := fn(old)
		if next == old {
			return false
		}
		next.version = old.version + 1
		if c.ptr.CompareAndSwap(old, next) {
			select {
			case c.changed <- struct{}{}:
			default:
			}
			return true
		}
	}
}
