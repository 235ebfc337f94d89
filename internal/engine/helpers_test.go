package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
)

// collectFor collects s for d and returns everything emitted.
func collectFor(t *testing.T, s Stream, d time.Duration) []*ir.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	var out []*ir.Record
	err := s.Collect(ctx, func(r *ir.Record) { out = append(out, r) })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	return out
}

// subscription is a Collect running in the background.
type subscription struct {
	ch     chan *ir.Record
	errc   chan error
	cancel context.CancelFunc
}

func subscribe(t *testing.T, s Stream) *subscription {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		ch:     make(chan *ir.Record, 64),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		sub.errc <- s.Collect(ctx, func(r *ir.Record) { sub.ch <- r })
	}()
	t.Cleanup(cancel)
	return sub
}

func (s *subscription) next(t *testing.T) *ir.Record {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case err := <-s.errc:
		t.Fatalf("stream ended: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	return nil
}

func (s *subscription) quiet(t *testing.T) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected emission: %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *subscription) stop(t *testing.T) error {
	t.Helper()
	s.cancel()
	select {
	case err := <-s.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Collect to return")
	}
	return nil
}

// fakeBinder hands out bindings the test drives by hand.
type fakeBinder struct {
	mu         sync.Mutex
	log        []string
	bounds     []*fakeBound
	failString error
}

type fakeBound struct {
	binder  *fakeBinder
	name    string
	floatRx expr.Receiver[float32]
	textRx  expr.Receiver[string]
}

func (b *fakeBinder) record(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, entry)
}

func (b *fakeBinder) entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

func (b *fakeBinder) bound(i int) *fakeBound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bounds[i]
}

func (b *fakeBinder) BindFloat(req expr.FloatBindingRequest) (BoundDynamicType, error) {
	fb := &fakeBound{binder: b, name: "float", floatRx: req.Receiver}
	b.mu.Lock()
	b.bounds = append(b.bounds, fb)
	b.mu.Unlock()
	b.record("bind:float")
	return fb, nil
}

func (b *fakeBinder) BindString(req expr.StringBindingRequest) (BoundDynamicType, error) {
	if b.failString != nil {
		return nil, b.failString
	}
	fb := &fakeBound{binder: b, name: "string", textRx: req.Receiver}
	b.mu.Lock()
	b.bounds = append(b.bounds, fb)
	b.mu.Unlock()
	b.record("bind:string")
	return fb, nil
}

func (b *fakeBinder) factory() BinderFactory {
	return func(BinderConfig) (Binder, error) { return b, nil }
}

func (fb *fakeBound) StartEvaluation() { fb.binder.record("start:" + fb.name) }
func (fb *fakeBound) Close()           { fb.binder.record("close:" + fb.name) }

func (fb *fakeBound) sendFloat(v float32) { fb.floatRx.OnData(v) }
func (fb *fakeBound) sendText(v string)   { fb.textRx.OnData(v) }

func (fb *fakeBound) invalidate() {
	if fb.floatRx != nil {
		fb.floatRx.OnInvalidated()
		return
	}
	fb.textRx.OnInvalidated()
}

func countEntries(entries []string, want string) int {
	n := 0
	for _, e := range entries {
		if e == want {
			n++
		}
	}
	return n
}

// Record builders.

func rangedRecord(e ir.DynamicFloat) *ir.Record {
	return &ir.Record{
		Kind:               ir.KindRangedValue,
		RangedMin:          0,
		RangedMax:          100,
		RangedDynamicValue: e,
	}
}

func shortTextRecord(text string, e ir.DynamicString) *ir.Record {
	t := ir.PlainText(text)
	if e != nil {
		t = ir.DynamicText(text, e)
	}
	return &ir.Record{Kind: ir.KindShortText, ShortText: t}
}
