package engine

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dyneval/internal/ir"
)

type indexedRecord struct {
	index  int
	record *ir.Record
}

// combineLatest collects every input concurrently and, after each update,
// calls combine with the latest record of each input (nil where an input
// has not emitted yet). Non-nil results are emitted. The first input error
// cancels the others and is returned.
func combineLatest(inputs []Stream, combine func(latest []*ir.Record) *ir.Record) Stream {
	return StreamFunc(func(ctx context.Context, emit func(*ir.Record)) error {
		g, gctx := errgroup.WithContext(ctx)
		updates := make(chan indexedRecord)
		for i, in := range inputs {
			i, in := i, in
			g.Go(func() error {
				return in.Collect(gctx, func(r *ir.Record) {
					select {
					case updates <- indexedRecord{index: i, record: r}:
					case <-gctx.Done():
					}
				})
			})
		}

		finished := make(chan struct{})
		var err error
		go func() {
			err = g.Wait()
			close(finished)
		}()

		latest := make([]*ir.Record, len(inputs))
		for {
			select {
			case u := <-updates:
				latest[u.index] = u.record
				if ctx.Err() != nil {
					continue
				}
				if out := combine(latest); out != nil {
					emit(out)
				}
			case <-finished:
				return err
			}
		}
	})
}

// combineEntries joins the top-level stream with evaluated nested entries.
// Nothing is emitted until every input has emitted. An invalid top level
// passes through; otherwise any invalid entry yields the invalid sentinel.
func combineEntries(top Stream, entries []Stream, set func(*ir.Record, []*ir.Record) *ir.Record) Stream {
	if len(entries) == 0 {
		return top
	}
	return combineLatest(append([]Stream{top}, entries...), func(latest []*ir.Record) *ir.Record {
		if slices.Contains(latest, nil) {
			return nil
		}
		data := latest[0]
		if ir.IsInvalid(data) {
			return data
		}
		if slices.ContainsFunc(latest[1:], ir.IsInvalid) {
			return ir.InvalidRecord
		}
		return set(data, latest[1:])
	})
}

// combinePlaceholder attaches the evaluated placeholder when the record has
// kind NO_DATA, or always when keep is set; otherwise it clears the
// placeholder without waiting for it. An invalid placeholder that is needed
// yields the invalid sentinel. The sentinel itself has kind NO_DATA, so a
// valid placeholder turns it into a NO_DATA record carrying the placeholder.
func combinePlaceholder(top, placeholder Stream, keep bool) Stream {
	if placeholder == nil {
		return top
	}
	return combineLatest([]Stream{top, placeholder}, func(latest []*ir.Record) *ir.Record {
		data, ph := latest[0], latest[1]
		if data == nil {
			return nil
		}
		if !keep && data.Kind != ir.KindNoData {
			if data.Placeholder == nil {
				return data
			}
			return data.WithPlaceholder(nil)
		}
		if ph == nil {
			return nil
		}
		if ir.IsInvalid(ph) {
			return ir.InvalidRecord
		}
		return data.WithPlaceholder(ph)
	})
}
