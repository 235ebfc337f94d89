package expr

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/dyneval/internal/ir"
)

// recorder collects callbacks in order. "!" marks an invalidation.
type recorder[T any] struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder[T]) OnData(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v)
}

func (r *recorder[T]) OnInvalidated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "!")
}

func (r *recorder[T]) get() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

type fixture struct {
	state   *StateStore
	clock   *ManualTimeGateway
	sensors *FakeSensorGateway
	ev      *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   NewStateStore(nil),
		clock:   NewManualTimeGateway(time.Date(2024, 3, 1, 9, 15, 30, 0, time.UTC)),
		sensors: NewFakeSensorGateway(),
	}
	ev, err := New(Config{
		StateStore:  f.state,
		TimeGateway: f.clock,
		Providers:   SensorProviders(f.sensors),
	})
	require.NoError(t, err)
	f.ev = ev
	return f
}

func (f *fixture) bindFloat(t *testing.T, e ir.DynamicFloat) (*recorder[float32], BoundDynamicType) {
	t.Helper()
	rec := &recorder[float32]{}
	b, err := f.ev.BindFloat(FloatBindingRequest{Expr: e, Executor: Inline, Receiver: rec})
	require.NoError(t, err)
	return rec, b
}

func (f *fixture) bindString(t *testing.T, e ir.DynamicString, tag language.Tag) (*recorder[string], BoundDynamicType) {
	t.Helper()
	rec := &recorder[string]{}
	b, err := f.ev.BindString(StringBindingRequest{Expr: e, Locale: tag, Executor: Inline, Receiver: rec})
	require.NoError(t, err)
	return rec, b
}

func TestNew_RejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Providers: map[string]PlatformDataProvider{
		"blood_oxygen": NewSensorProvider(NewFakeSensorGateway(), "blood_oxygen"),
	}})
	assert.Error(t, err)
}

func TestBindFloat_RejectsMalformed(t *testing.T) {
	f := newFixture(t)
	rec := &recorder[float32]{}

	tests := []struct {
		name string
		expr ir.DynamicFloat
	}{
		{"nil", nil},
		{"bad op", ir.FloatArith{Op: "pow", Left: ir.FloatConst{Value: 1}, Right: ir.FloatConst{Value: 2}}},
		{"nil operand", ir.FloatArith{Op: ir.OpAdd, Left: ir.FloatConst{Value: 1}}},
		{"bad time field", ir.FloatTime{Field: "fortnight"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ev.BindFloat(FloatBindingRequest{Expr: tt.expr, Receiver: rec})
			assert.Error(t, err)
		})
	}
}

func TestBinding_NothingBeforeStart(t *testing.T) {
	f := newFixture(t)
	rec, b := f.bindFloat(t, ir.FloatConst{Value: 3})

	assert.Empty(t, rec.get())
	b.StartEvaluation()
	assert.Equal(t, []any{float32(3)}, rec.get())

	b.StartEvaluation()
	assert.Len(t, rec.get(), 1, "second start is a no-op")
}

func TestBinding_StateUpdates(t *testing.T) {
	f := newFixture(t)
	f.state.Set("x", Float(2))
	rec, b := f.bindFloat(t, ir.FloatArith{Op: ir.OpMul, Left: ir.FloatState{Key: "x"}, Right: ir.FloatConst{Value: 10}})
	b.StartEvaluation()

	f.state.Set("x", Float(3))
	f.state.Set("x", Float(3))
	f.state.Remove("x")
	f.state.Set("x", String("nope"))
	f.state.Set("x", Float(4))

	assert.Equal(t, []any{float32(20), float32(30), "!", float32(40)}, rec.get())
}

func TestBinding_DivisionByZeroInvalidates(t *testing.T) {
	f := newFixture(t)
	f.state.Set("d", Float(0))
	rec, b := f.bindFloat(t, ir.FloatArith{Op: ir.OpDiv, Left: ir.FloatConst{Value: 1}, Right: ir.FloatState{Key: "d"}})
	b.StartEvaluation()

	f.state.Set("d", Float(4))
	assert.Equal(t, []any{"!", float32(0.25)}, rec.get())
}

func TestBinding_NonFiniteLeavesInvalidate(t *testing.T) {
	f := newFixture(t)
	f.state.Set("x", Float(math.NaN()))
	rec, b := f.bindFloat(t, ir.FloatState{Key: "x"})
	b.StartEvaluation()

	f.state.Set("x", Float(math.NaN()))
	f.state.Set("x", Float(math.Inf(1)))
	f.state.Set("x", Float(5))
	assert.Equal(t, []any{"!", float32(5)}, rec.get())

	hr, hb := f.bindFloat(t, ir.FloatPlatform{Key: KeyHeartRateBPM})
	hb.StartEvaluation()
	f.sensors.Emit(KeyHeartRateBPM, float32(math.Inf(-1)))
	f.sensors.Emit(KeyHeartRateBPM, 70)
	assert.Equal(t, []any{"!", float32(70)}, hr.get())

	f.state.Set("y", Float(math.NaN()))
	text, tb := f.bindString(t, ir.StringFormat{Value: ir.FloatState{Key: "y"}}, language.English)
	tb.StartEvaluation()
	assert.Equal(t, []any{"!"}, text.get())
}

func TestBinding_SensorPendingUntilReading(t *testing.T) {
	f := newFixture(t)
	rec, b := f.bindFloat(t, ir.FloatPlatform{Key: KeyHeartRateBPM})
	b.StartEvaluation()
	assert.Empty(t, rec.get())

	f.sensors.Emit(KeyHeartRateBPM, 65)
	assert.Equal(t, []any{float32(65)}, rec.get())
}

func TestBinding_SensorWithoutProviderInvalid(t *testing.T) {
	ev, err := New(Config{})
	require.NoError(t, err)
	rec := &recorder[float32]{}
	b, err := ev.BindFloat(FloatBindingRequest{Expr: ir.FloatPlatform{Key: KeyDailySteps}, Receiver: rec})
	require.NoError(t, err)

	b.StartEvaluation()
	assert.Equal(t, []any{"!"}, rec.get())
}

func TestBinding_TimeTicks(t *testing.T) {
	f := newFixture(t)
	rec, b := f.bindFloat(t, ir.FloatTime{Field: ir.TimeSecond})
	b.StartEvaluation()

	f.clock.Advance(time.Second)
	f.clock.Advance(time.Minute) // same second, suppressed
	assert.Equal(t, []any{float32(30), float32(31)}, rec.get())
}

func TestBinding_CloseStopsCallbacks(t *testing.T) {
	f := newFixture(t)
	f.state.Set("x", Float(1))
	rec, b := f.bindFloat(t, ir.FloatState{Key: "x"})
	b.StartEvaluation()
	b.Close()
	b.Close()

	f.state.Set("x", Float(2))
	assert.Equal(t, []any{float32(1)}, rec.get())
	assert.Equal(t, 0, f.state.ListenerCount("x"))
}

func TestBinding_StartAfterCloseIsNoop(t *testing.T) {
	f := newFixture(t)
	rec, b := f.bindFloat(t, ir.FloatConst{Value: 1})
	b.Close()
	b.StartEvaluation()
	assert.Empty(t, rec.get())
}

func TestBinding_QueuedCallbackAfterCloseIsDropped(t *testing.T) {
	f := newFixture(t)
	var queued []func()
	ex := ExecutorFunc(func(fn func()) { queued = append(queued, fn) })
	rec := &recorder[float32]{}
	b, err := f.ev.BindFloat(FloatBindingRequest{Expr: ir.FloatConst{Value: 1}, Executor: ex, Receiver: rec})
	require.NoError(t, err)

	b.StartEvaluation()
	require.Len(t, queued, 1)
	b.Close()
	queued[0]()
	assert.Empty(t, rec.get())
}

func TestBindString_ConcatAndFormat(t *testing.T) {
	f := newFixture(t)
	f.state.Set("name", String("Ana"))
	f.sensors.Emit(KeyHeartRateBPM, 72.5)

	e := ir.ConcatStrings(
		ir.StringState{Key: "name"},
		ir.StringConst{Value: ": "},
		ir.StringFormat{Value: ir.FloatPlatform{Key: KeyHeartRateBPM}, MinFractionDigits: 1, MaxFractionDigits: 1},
	)
	rec, b := f.bindString(t, e, language.English)
	b.StartEvaluation()

	assert.Equal(t, []any{"Ana: 72.5"}, rec.get())

	f.state.Set("name", Float(1))
	assert.Equal(t, []any{"Ana: 72.5", "!"}, rec.get())
}

func TestBindString_LocaleFormatting(t *testing.T) {
	f := newFixture(t)
	f.state.Set("v", Float(72.5))
	rec, b := f.bindString(t, ir.StringFormat{Value: ir.FloatState{Key: "v"}, MinFractionDigits: 1, MaxFractionDigits: 1}, language.German)
	b.StartEvaluation()

	assert.Equal(t, []any{"72,5"}, rec.get())
}

func TestFormatter_MaxBelowMin(t *testing.T) {
	fm := newFormatter(language.English)
	assert.Equal(t, "3.00", fm.format(3, 2, 0))
	assert.Equal(t, "3", fm.format(3, 0, 0))
}

func TestBinding_ConcurrentUpdatesSerialized(t *testing.T) {
	f := newFixture(t)
	f.state.Set("x", Float(0))
	rec, b := f.bindFloat(t, ir.FloatState{Key: "x"})
	b.StartEvaluation()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v float32) {
			defer wg.Done()
			f.state.Set("x", Float(v))
		}(float32(i))
	}
	wg.Wait()
	b.Close()

	events := rec.get()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1], events[i], "consecutive duplicates delivered")
	}
}
