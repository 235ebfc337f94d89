package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dyneval/internal/ir"
)

// TraceSubscription describes one traced subscription.
type TraceSubscription struct {
	ID         string
	RecordName string
	RecordHash string
	StartedSeq int64
}

// TraceEmission is one record delivered to a traced subscription.
type TraceEmission struct {
	SubscriptionID string
	Seq            int64
	Record         *ir.Record
}

// TraceSink persists traced subscriptions. Implemented by store.Store.
type TraceSink interface {
	BeginSubscription(ctx context.Context, sub TraceSubscription) error
	RecordEmission(ctx context.Context, em TraceEmission) error
}

// Tracer records subscriptions and their emissions to a TraceSink, stamping
// each with a logical sequence number.
type Tracer struct {
	sink  TraceSink
	ids   IDGenerator
	clock *Clock
}

// NewTracer creates a Tracer. Nil ids or clock fall back to UUIDv7 ids and
// a clock starting at 0.
func NewTracer(sink TraceSink, ids IDGenerator, clock *Clock) *Tracer {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	if clock == nil {
		clock = NewClock()
	}
	return &Tracer{sink: sink, ids: ids, clock: clock}
}

// Trace wraps s, which evaluates the record rec named name. Every Collect
// gets a fresh subscription id, also stored in the context so the engine
// logs with it. A sink failure ends the subscription with that error.
func (t *Tracer) Trace(name string, rec *ir.Record, s Stream) Stream {
	return StreamFunc(func(ctx context.Context, emit func(*ir.Record)) error {
		hash, err := ir.RecordHash(rec)
		if err != nil {
			return fmt.Errorf("trace %s: %w", name, err)
		}
		id := t.ids.Generate()
		sub := TraceSubscription{
			ID:         id,
			RecordName: name,
			RecordHash: hash,
			StartedSeq: t.clock.Next(),
		}
		if err := t.sink.BeginSubscription(ctx, sub); err != nil {
			return fmt.Errorf("trace %s: begin subscription: %w", name, err)
		}

		ctx, cancel := context.WithCancelCause(ContextWithSessionID(ctx, id))
		defer cancel(nil)

		var sinkErr error
		err = s.Collect(ctx, func(r *ir.Record) {
			if sinkErr != nil {
				return
			}
			em := TraceEmission{SubscriptionID: id, Seq: t.clock.Next(), Record: r}
			if err := t.sink.RecordEmission(ctx, em); err != nil {
				sinkErr = fmt.Errorf("trace %s: record emission %d: %w", name, em.Seq, err)
				cancel(sinkErr)
				return
			}
			emit(r)
		})
		if sinkErr != nil {
			return sinkErr
		}
		return err
	})
}
