package engine

import (
	"context"
	"errors"

	"github.com/roach88/dyneval/internal/ir"
)

// Stream is a cold sequence of records. Every Collect starts an
// independent evaluation, calls emit serially on the calling goroutine and
// blocks until ctx is done (returning ctx.Err()), the sequence ends
// (returning nil) or a terminal failure occurs.
type Stream interface {
	Collect(ctx context.Context, emit func(*ir.Record)) error
}

// StreamFunc adapts a function to Stream.
type StreamFunc func(ctx context.Context, emit func(*ir.Record)) error

// Collect calls f.
func (f StreamFunc) Collect(ctx context.Context, emit func(*ir.Record)) error {
	return f(ctx, emit)
}

// Take collects s until n records were emitted, then cancels it.
// Reaching n is not an error; a ctx cancellation before that is.
func Take(ctx context.Context, s Stream, n int) ([]*ir.Record, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	errEnough := errors.New("enough records")
	var out []*ir.Record
	err := s.Collect(ctx, func(r *ir.Record) {
		if len(out) >= n {
			return
		}
		out = append(out, r)
		if len(out) == n {
			cancel(errEnough)
		}
	})
	if len(out) == n && errors.Is(context.Cause(ctx), errEnough) {
		return out, nil
	}
	return out, err
}

// distinct drops records equal to the previous one. The invalid sentinel
// only equals itself.
func distinct(in Stream) Stream {
	return StreamFunc(func(ctx context.Context, emit func(*ir.Record)) error {
		var last *ir.Record
		return in.Collect(ctx, func(r *ir.Record) {
			if last != nil && sameEmission(last, r) {
				return
			}
			last = r
			emit(r)
		})
	})
}

func sameEmission(a, b *ir.Record) bool {
	if ir.IsInvalid(a) || ir.IsInvalid(b) {
		return a == b
	}
	return a.Equal(b)
}
