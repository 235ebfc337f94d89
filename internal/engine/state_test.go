package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/ir"
)

func setValue(index int, v float32) valueEvent {
	return valueEvent{index: index, apply: func(d *ir.Record) *ir.Record { return d.WithRangedValue(v) }}
}

func TestEvalState_OutputRules(t *testing.T) {
	data := &ir.Record{Kind: ir.KindRangedValue}
	s := newEvalState(data, 2)
	assert.Nil(t, s.output(), "pending receivers hold back output")

	s = transition(s, setValue(0, 1))
	assert.Nil(t, s.output())

	s = transition(s, invalidatedEvent{index: 1})
	assert.Same(t, ir.InvalidRecord, s.output())

	s = transition(s, setValue(1, 2))
	out := s.output()
	require.NotNil(t, out)
	assert.Equal(t, float32(2), out.RangedValue)
	assert.Equal(t, 0, s.pending)
	assert.Equal(t, 0, s.invalid)
}

func TestEvalState_NoReceiversEmitsData(t *testing.T) {
	data := &ir.Record{Kind: ir.KindEmpty}
	assert.Same(t, data, newEvalState(data, 0).output())
}

func TestEvalState_StatusesAreExclusive(t *testing.T) {
	s := newEvalState(&ir.Record{}, 3)
	events := []receiverEvent{
		setValue(0, 1),
		invalidatedEvent{index: 0},
		invalidatedEvent{index: 0},
		setValue(0, 2),
		invalidatedEvent{index: 2},
	}
	for _, ev := range events {
		s = transition(s, ev)
		complete := 0
		for _, st := range s.statuses {
			if st == receiverComplete {
				complete++
			}
		}
		assert.Equal(t, len(s.statuses), s.pending+s.invalid+complete)
	}
	assert.Equal(t, []receiverStatus{receiverComplete, receiverPending, receiverInvalid}, s.statuses)
}

func TestEvalState_TransitionDoesNotMutate(t *testing.T) {
	s := newEvalState(&ir.Record{}, 1)
	next := transition(s, setValue(0, 5))

	assert.Equal(t, receiverPending, s.statuses[0])
	assert.Equal(t, 1, s.pending)
	assert.Equal(t, float32(0), s.data.RangedValue)
	assert.Equal(t, float32(5), next.data.RangedValue)
}

func TestEvalState_RepeatedInvalidationIsNoop(t *testing.T) {
	s := transition(newEvalState(&ir.Record{}, 1), invalidatedEvent{index: 0})
	assert.Same(t, s, transition(s, invalidatedEvent{index: 0}))
}

func TestStateCell_VersionAndSignal(t *testing.T) {
	c := newStateCell(newEvalState(&ir.Record{}, 1))

	assert.True(t, c.update(func(s *evalState) *evalState { return transition(s, setValue(0, 1)) }))
	assert.Equal(t, uint64(1), c.load().version)
	select {
	case <-c.changed:
	default:
		t.Fatal("expected change signal")
	}

	assert.False(t, c.update(func(s *evalState) *evalState { return s }))
	assert.Equal(t, uint64(1), c.load().version)
}

func TestStateCell_ConcurrentUpdatesNotLost(t *testing.T) {
	const n = 200
	c := newStateCell(newEvalState(&ir.Record{}, n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			c.update(func(s *evalState) *evalState {
				return transition(s, valueEvent{index: index, apply: func(d *ir.Record) *ir.Record {
					return d.WithRangedValue(d.RangedValue + 1)
				}})
			})
		}(i)
	}
	wg.Wait()

	final := c.load()
	assert.Equal(t, 0, final.pending)
	assert.Equal(t, float32(n), final.data.RangedValue)
	assert.Equal(t, uint64(n), final.version)
}
