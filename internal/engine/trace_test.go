package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
)

type memorySink struct {
	mu        sync.Mutex
	subs      []TraceSubscription
	emissions []TraceEmission
	failAfter int
}

func (s *memorySink) BeginSubscription(_ context.Context, sub TraceSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return nil
}

func (s *memorySink) RecordEmission(_ context.Context, em TraceEmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.emissions) >= s.failAfter {
		return errors.New("disk full")
	}
	s.emissions = append(s.emissions, em)
	return nil
}

func TestTracer_RecordsSubscriptionAndEmissions(t *testing.T) {
	e, env := newTestEvaluator(t)
	env.state.Set("x", expr.Float(1))
	rec := rangedRecord(ir.FloatState{Key: "x"})
	sink := &memorySink{}
	tracer := NewTracer(sink, NewFixedGenerator("sub-1"), NewClock())

	sub := subscribe(t, tracer.Trace("gauge", rec, e.Evaluate(rec)))
	sub.next(t)
	env.state.Set("x", expr.Float(2))
	sub.next(t)
	require.ErrorIs(t, sub.stop(t), context.Canceled)

	require.Len(t, sink.subs, 1)
	assert.Equal(t, TraceSubscription{
		ID:         "sub-1",
		RecordName: "gauge",
		RecordHash: ir.MustRecordHash(rec),
		StartedSeq: 1,
	}, sink.subs[0])

	require.Len(t, sink.emissions, 2)
	assert.Equal(t, int64(2), sink.emissions[0].Seq)
	assert.Equal(t, int64(3), sink.emissions[1].Seq)
	assert.Equal(t, "sub-1", sink.emissions[1].SubscriptionID)
	assert.Equal(t, float32(2), sink.emissions[1].Record.RangedValue)
}

func TestTracer_SinkFailureEndsSubscription(t *testing.T) {
	e, env := newTestEvaluator(t)
	env.state.Set("x", expr.Float(1))
	rec := rangedRecord(ir.FloatState{Key: "x"})
	sink := &memorySink{failAfter: 1}
	tracer := NewTracer(sink, nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- tracer.Trace("gauge", rec, e.Evaluate(rec)).Collect(context.Background(), func(*ir.Record) {})
	}()
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.emissions) == 1
	}, time.Second, time.Millisecond)
	env.state.Set("x", expr.Float(2))

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "disk full")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.Equal(t, 0, env.state.ListenerCount("x"))
}
