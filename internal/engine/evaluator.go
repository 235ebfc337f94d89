package engine

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
	"github.com/roach88/dyneval/internal/telemetry"
)

// Evaluator turns records into streams of evaluated records.
//
// Thread-safety: an Evaluator is immutable after New; Evaluate and the
// returned streams may be used from any goroutine. Sessions never share
// mutable state.
type Evaluator struct {
	binderConfig BinderConfig
	factory      BinderFactory
	keepDynamic  bool
	affinity     *Looper
	ownsAffinity bool
	executor     expr.Executor
	locale       language.Tag
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	ids          IDGenerator
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStateStore forwards a state store to the binder.
func WithStateStore(s *expr.StateStore) Option {
	return func(e *Evaluator) {
		e.binderConfig.StateStore = s
	}
}

// WithTimeGateway forwards a time gateway to the binder.
func WithTimeGateway(g expr.TimeGateway) Option {
	return func(e *Evaluator) {
		e.binderConfig.TimeGateway = g
	}
}

// WithSensorGateway forwards a sensor gateway to the binder, enabling the
// heart rate and daily steps platform keys.
func WithSensorGateway(g expr.SensorGateway) Option {
	return func(e *Evaluator) {
		e.binderConfig.SensorGateway = g
	}
}

// WithKeepDynamicValues keeps each expression next to its evaluated value
// and always attaches the evaluated placeholder.
func WithKeepDynamicValues(keep bool) Option {
	return func(e *Evaluator) {
		e.keepDynamic = keep
	}
}

// WithBinderFactory replaces DefaultBinderFactory.
func WithBinderFactory(f BinderFactory) Option {
	return func(e *Evaluator) {
		e.factory = f
	}
}

// WithAffinity shares the host's looper. The Evaluator will not close it.
func WithAffinity(l *Looper) Option {
	return func(e *Evaluator) {
		e.affinity = l
	}
}

// WithCallbackExecutor sets where binder callbacks are delivered.
//
// Default: expr.Inline (on the goroutine that produced the value)
func WithCallbackExecutor(ex expr.Executor) Option {
	return func(e *Evaluator) {
		e.executor = ex
	}
}

// WithLocale sets the locale used for number formatting in text fields.
//
// Default: language.English
func WithLocale(tag language.Tag) Option {
	return func(e *Evaluator) {
		e.locale = tag
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithMetrics records session metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithSessionIDs sets the generator for subscription ids that are not
// already present in the Collect context.
//
// Default: UUIDv7Generator
func WithSessionIDs(g IDGenerator) Option {
	return func(e *Evaluator) {
		e.ids = g
	}
}

// New creates an Evaluator. Unless WithAffinity is given it starts its own
// Looper, released by Close.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		factory:  DefaultBinderFactory,
		executor: expr.Inline,
		locale:   language.English,
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.affinity == nil {
		e.affinity = NewLooper()
		e.ownsAffinity = true
	}
	return e
}

// Close stops the Evaluator's own looper. Streams collected afterwards
// fail to initialize if they have dynamic fields.
func (e *Evaluator) Close() {
	if e.ownsAffinity {
		e.affinity.Close()
	}
}

// KeepDynamicValues reports whether keep-dynamic-values mode is on.
func (e *Evaluator) KeepDynamicValues() bool {
	return e.keepDynamic
}

// Evaluate returns a stream of evaluated versions of rec. rec is never
// modified. Each Collect is an independent subscription.
func (e *Evaluator) Evaluate(rec *ir.Record) Stream {
	if rec == nil {
		return StreamFunc(func(context.Context, func(*ir.Record)) error {
			return errors.New("evaluate: nil record")
		})
	}
	inner := e.evaluate(rec)
	return StreamFunc(func(ctx context.Context, emit func(*ir.Record)) error {
		id := SessionIDFromContext(ctx)
		if id == "" {
			id = e.ids.Generate()
			ctx = ContextWithSessionID(ctx, id)
		}
		logger := telemetry.WithSessionID(e.logger, id)

		e.metrics.SessionStarted()
		defer e.metrics.SessionEnded()
		logger.Debug("subscription started", "kind", rec.Kind)

		err := inner.Collect(ctx, func(r *ir.Record) {
			e.metrics.Emission(ir.IsInvalid(r))
			emit(r)
		})
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			logger.Debug("subscription ended")
		default:
			logger.Error("subscription failed", "error", err)
		}
		return err
	})
}

// evaluate builds the stage pipeline for rec and, recursively, its entries
// and placeholder.
func (e *Evaluator) evaluate(rec *ir.Record) Stream {
	s := e.topLevel(rec)
	s = combineEntries(s, e.evaluateAll(rec.TimelineEntries), (*ir.Record).WithTimelineEntries)
	s = combineEntries(s, e.evaluateAll(rec.ListEntries), (*ir.Record).WithListEntries)
	var placeholder Stream
	if rec.Placeholder != nil {
		placeholder = e.evaluate(rec.Placeholder)
	}
	s = combinePlaceholder(s, placeholder, e.keepDynamic)
	return distinct(s)
}

func (e *Evaluator) evaluateAll(recs []*ir.Record) []Stream {
	out := make([]Stream, len(recs))
	for i, r := range recs {
		out[i] = e.evaluate(r)
	}
	return out
}

// topLevel evaluates the dynamic scalar fields of rec, leaving nested
// records untouched.
func (e *Evaluator) topLevel(rec *ir.Record) Stream {
	return StreamFunc(func(ctx context.Context, emit func(*ir.Record)) error {
		s := e.newSession(ctx, rec)
		if err := s.init(); err != nil {
			return err
		}
		defer s.dispose()
		return s.observe(ctx, emit)
	})
}

type ctxKey string

const ctxSessionID ctxKey = "session_id"

// ContextWithSessionID tags ctx with a subscription id used for logs,
// errors and traces.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxSessionID, id)
}

// SessionIDFromContext returns the subscription id in ctx, if any.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxSessionID).(string)
	return id
}
