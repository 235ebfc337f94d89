package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/dyneval/internal/compiler"
	"github.com/roach88/dyneval/internal/engine"
	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
	"github.com/roach88/dyneval/internal/telemetry"
	"github.com/roach88/dyneval/internal/testutil"
)

// Options tune scenario execution.
type Options struct {
	// Quiet is how long the stream must stay silent before an emission
	// counts as settled. Defaults to 50ms.
	Quiet time.Duration

	// Timeout bounds each settle wait. Defaults to 2s.
	Timeout time.Duration

	// Logger receives engine logs. Defaults to a discarding logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Quiet <= 0 {
		o.Quiet = 50 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = telemetry.DiscardLogger()
	}
	return o
}

// Harness drives one scenario.
type Harness struct {
	scenario *Scenario
	opts     Options
	state    *expr.StateStore
	clock    *expr.ManualTimeGateway
	sensors  *expr.FakeSensorGateway
	watch    *watcher
}

// Run executes a scenario with default options.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes a scenario and returns the result.
//
// Execution flow:
// 1. Load and validate the records directory, pick the scenario's record
// 2. Build the engine on a seeded state store, manual clock and fake sensors
// 3. Subscribe through a tracer and settle
// 4. Apply each step, settle and check its expectations
// 5. Evaluate assertions against the trace
//
// Errors in the scenario setup are returned; evaluation failures and
// unmet expectations are reported in the Result.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	rec, err := loadRecord(scenario)
	if err != nil {
		return nil, err
	}
	tag, err := scenario.locale()
	if err != nil {
		return nil, err
	}
	start, err := scenario.startTime()
	if err != nil {
		return nil, err
	}
	initial, err := convertState(scenario.State)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		opts:     opts,
		state:    expr.NewStateStore(initial),
		clock:    expr.NewManualTimeGateway(start),
		sensors:  expr.NewFakeSensorGateway(scenario.sensorKeys()...),
		watch:    newWatcher(),
	}

	ev := engine.New(
		engine.WithStateStore(h.state),
		engine.WithTimeGateway(h.clock),
		engine.WithSensorGateway(h.sensors),
		engine.WithKeepDynamicValues(scenario.KeepDynamic),
		engine.WithLocale(tag),
		engine.WithLogger(opts.Logger),
	)
	defer ev.Close()

	sink := testutil.NewMemorySink()
	tracer := engine.NewTracer(sink, testutil.NewSequentialIDGenerator("sub"), engine.NewClock())
	stream := tracer.Trace(scenario.Record, rec, ev.Evaluate(rec))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		h.watch.finish(stream.Collect(ctx, h.watch.emit))
	}()

	result := NewResult()
	result.addEntry(0, h.watch.settle(opts.Quiet, opts.Timeout))

	for i, step := range scenario.Steps {
		if err := h.apply(step); err != nil {
			cancel()
			h.watch.wait()
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		latest := h.watch.settle(opts.Quiet, opts.Timeout)
		result.addEntry(i+1, latest)
		checkStep(result, i, step, latest)
	}

	cancel()
	if err := h.watch.wait(); err != nil && !errors.Is(err, context.Canceled) {
		result.AddError(fmt.Sprintf("evaluation failed: %v", err))
	}
	result.Emissions = len(sink.Emissions())

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadRecord(scenario *Scenario) (*ir.Record, error) {
	recs, err := compiler.LoadDir(scenario.Records)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if errs := compiler.ValidateAll(recs); len(errs) > 0 {
		return nil, fmt.Errorf("invalid records: %w", errs[0])
	}
	for _, nr := range recs {
		if nr.Name == scenario.Record {
			return nr.Record, nil
		}
	}
	return nil, fmt.Errorf("record %q not found in %s", scenario.Record, scenario.Records)
}

// apply performs the step's action, if any.
func (h *Harness) apply(step Step) error {
	switch {
	case step.SetState != nil:
		values, err := convertState(step.SetState)
		if err != nil {
			return err
		}
		h.state.SetAll(values)
	case step.RemoveState != nil:
		h.state.Remove(step.RemoveState...)
	case step.Sensor != nil:
		for key, v := range step.Sensor {
			h.sensors.Emit(key, float32(v))
		}
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	}
	return nil
}

// watcher collects emissions from a running stream.
type watcher struct {
	mu      sync.Mutex
	latest  *ir.Record
	changed chan struct{}
	done    chan struct{}
	err     error
}

func newWatcher() *watcher {
	return &watcher{
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (w *watcher) emit(r *ir.Record) {
	w.mu.Lock()
	w.latest = r
	w.mu.Unlock()
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

func (w *watcher) finish(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	close(w.done)
}

// wait blocks until the stream returned and reports its error.
func (w *watcher) wait() error {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// settle waits until nothing was emitted for quiet, the stream ended or
// timeout passed, then returns the latest emission.
func (w *watcher) settle(quiet, timeout time.Duration) *ir.Record {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-w.changed:
			continue
		case <-w.done:
		case <-deadline.C:
		case <-time.After(quiet):
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.latest
	}
}
