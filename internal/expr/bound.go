package expr

import (
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/dyneval/internal/ir"
)

// status is the outcome of one evaluation pass.
type status int

const (
	statusValid status = iota
	statusPending
	statusInvalid
)

func worse(a, b status) status {
	return max(a, b)
}

// binding evaluates one expression tree. Every source change schedules a
// full recomputation on the executor; recomputations are serialized by mu.
type binding[T comparable] struct {
	ev       *Evaluator
	executor Executor
	receiver Receiver[T]
	compute  func() (T, status)

	stateKeys    []string
	platformKeys []string
	needsTime    bool

	readingsMu sync.Mutex
	readings   map[string]float32

	closed atomic.Bool

	mu          sync.Mutex
	started     bool
	unsubs      []func()
	last        T
	hasLast     bool
	lastInvalid bool
}

func newBinding[T comparable](ev *Evaluator, ex Executor, r Receiver[T]) *binding[T] {
	if ex == nil {
		ex = Inline
	}
	return &binding[T]{
		ev:       ev,
		executor: ex,
		receiver: r,
		readings: make(map[string]float32),
	}
}

func (b *binding[T]) addFloatLeaf(e ir.DynamicFloat) {
	switch n := e.(type) {
	case ir.FloatState:
		b.stateKeys = appendUnique(b.stateKeys, n.Key)
	case ir.FloatPlatform:
		b.platformKeys = appendUnique(b.platformKeys, n.Key)
	case ir.FloatTime:
		b.needsTime = true
	}
}

func (b *binding[T]) addStringLeaf(e ir.DynamicString) {
	if n, ok := e.(ir.StringState); ok {
		b.stateKeys = appendUnique(b.stateKeys, n.Key)
	}
}

func appendUnique(keys []string, k string) []string {
	for _, have := range keys {
		if have == k {
			return keys
		}
	}
	return append(keys, k)
}

// StartEvaluation implements BoundDynamicType.
func (b *binding[T]) StartEvaluation() {
	b.mu.Lock()
	if b.started || b.closed.Load() {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	// Subscriptions may call back synchronously, so they are made without mu.
	unsubs := b.subscribe()

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	b.unsubs = unsubs
	b.mu.Unlock()

	b.changed()
}

func (b *binding[T]) subscribe() []func() {
	var unsubs []func()
	cfg := b.ev.cfg
	if cfg.StateStore != nil {
		for _, key := range b.stateKeys {
			unsubs = append(unsubs, cfg.StateStore.Subscribe(key, b.changed))
		}
	}
	if b.needsTime && cfg.TimeGateway != nil {
		unsubs = append(unsubs, cfg.TimeGateway.Subscribe(b.changed))
	}
	for _, key := range b.platformKeys {
		key := key
		p := cfg.Providers[key]
		if p == nil {
			continue
		}
		u, err := p.Subscribe(func(v float32) {
			b.readingsMu.Lock()
			b.readings[key] = v
			b.readingsMu.Unlock()
			b.changed()
		})
		if err != nil {
			// Treated like a missing provider: the leaf reads as invalid.
			continue
		}
		unsubs = append(unsubs, u)
	}
	return unsubs
}

// Close implements BoundDynamicType.
func (b *binding[T]) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func (b *binding[T]) changed() {
	if b.closed.Load() {
		return
	}
	b.executor.Execute(b.deliver)
}

func (b *binding[T]) deliver() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return
	}
	v, st := b.compute()
	switch st {
	case statusPending:
		return
	case statusInvalid:
		if b.lastInvalid {
			return
		}
		b.lastInvalid = true
		b.hasLast = false
		b.receiver.OnInvalidated()
	case statusValid:
		if b.hasLast && v == b.last {
			return
		}
		b.last, b.hasLast, b.lastInvalid = v, true, false
		b.receiver.OnData(v)
	}
}

func (b *binding[T]) reading(key string) (float32, bool) {
	b.readingsMu.Lock()
	defer b.readingsMu.Unlock()
	v, ok := b.readings[key]
	return v, ok
}

func (b *binding[T]) hasProvider(key string) bool {
	return b.ev.cfg.Providers[key] != nil
}

// evalFloat evaluates e. A NaN or infinite result at any node is invalid.
func (b *binding[T]) evalFloat(e ir.DynamicFloat) (float32, status) {
	v, st := b.evalFloatNode(e)
	if st == statusValid && (math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)) {
		return 0, statusInvalid
	}
	return v, st
}

func (b *binding[T]) evalFloatNode(e ir.DynamicFloat) (float32, status) {
	cfg := b.ev.cfg
	switch n := e.(type) {
	case ir.FloatConst:
		return n.Value, statusValid
	case ir.FloatState:
		if cfg.StateStore == nil {
			return 0, statusInvalid
		}
		v, ok := cfg.StateStore.Get(n.Key)
		if !ok {
			return 0, statusInvalid
		}
		f, ok := v.(Float)
		if !ok {
			return 0, statusInvalid
		}
		return float32(f), statusValid
	case ir.FloatPlatform:
		if !b.hasProvider(n.Key) {
			return 0, statusInvalid
		}
		v, ok := b.reading(n.Key)
		if !ok {
			return 0, statusPending
		}
		return v, statusValid
	case ir.FloatTime:
		if cfg.TimeGateway == nil {
			return 0, statusInvalid
		}
		v, ok := timeField(cfg.TimeGateway.Now(), string(n.Field))
		if !ok {
			return 0, statusInvalid
		}
		return v, statusValid
	case ir.FloatArith:
		l, ls := b.evalFloat(n.Left)
		r, rs := b.evalFloat(n.Right)
		if st := worse(ls, rs); st != statusValid {
			return 0, st
		}
		var out float32
		switch n.Op {
		case ir.OpAdd:
			out = l + r
		case ir.OpSub:
			out = l - r
		case ir.OpMul:
			out = l * r
		case ir.OpDiv:
			if r == 0 {
				return 0, statusInvalid
			}
			out = l / r
		default:
			return 0, statusInvalid
		}
		return out, statusValid
	}
	return 0, statusInvalid
}

func (b *binding[T]) evalString(e ir.DynamicString, fm *formatter) (string, status) {
	switch n := e.(type) {
	case ir.StringConst:
		return n.Value, statusValid
	case ir.StringState:
		store := b.ev.cfg.StateStore
		if store == nil {
			return "", statusInvalid
		}
		v, ok := store.Get(n.Key)
		if !ok {
			return "", statusInvalid
		}
		s, ok := v.(String)
		if !ok {
			return "", statusInvalid
		}
		return string(s), statusValid
	case ir.StringConcat:
		l, ls := b.evalString(n.Left, fm)
		r, rs := b.evalString(n.Right, fm)
		if st := worse(ls, rs); st != statusValid {
			return "", st
		}
		return l + r, statusValid
	case ir.StringFormat:
		v, st := b.evalFloat(n.Value)
		if st != statusValid {
			return "", st
		}
		return fm.format(v, n.MinFractionDigits, n.MaxFractionDigits), statusValid
	}
	return "", statusInvalid
}

// formatter renders floats with locale-specific separators.
type formatter struct {
	printer *message.Printer
}

func newFormatter(tag language.Tag) *formatter {
	return &formatter{printer: message.NewPrinter(tag)}
}

func (f *formatter) format(v float32, minDigits, maxDigits int) string {
	if maxDigits < minDigits {
		maxDigits = minDigits
	}
	return f.printer.Sprint(number.Decimal(float64(v),
		number.MinFractionDigits(minDigits),
		number.MaxFractionDigits(maxDigits),
	))
}
