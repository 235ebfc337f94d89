package expr

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/roach88/dyneval/internal/ir"
)

// Platform data keys understood by the evaluator.
const (
	KeyHeartRateBPM = ir.PlatformHeartRateBPM
	KeyDailySteps   = ir.PlatformDailySteps
)

// ErrNilExpression is returned when a binding request has no expression.
var ErrNilExpression = errors.New("nil expression")

// Config wires data sources into an Evaluator. Any field may be left empty;
// expressions reading a missing source are reported invalid.
type Config struct {
	StateStore  *StateStore
	TimeGateway TimeGateway
	Providers   map[string]PlatformDataProvider
}

// Receiver gets the results of one binding.
type Receiver[T any] interface {
	OnData(value T)
	OnInvalidated()
}

// ReceiverFuncs adapts a pair of functions to Receiver. Nil funcs are no-ops.
type ReceiverFuncs[T any] struct {
	Data        func(T)
	Invalidated func()
}

func (r ReceiverFuncs[T]) OnData(v T) {
	if r.Data != nil {
		r.Data(v)
	}
}

func (r ReceiverFuncs[T]) OnInvalidated() {
	if r.Invalidated != nil {
		r.Invalidated()
	}
}

// FloatBindingRequest asks for Expr to be evaluated into Receiver.
type FloatBindingRequest struct {
	Expr     ir.DynamicFloat
	Executor Executor
	Receiver Receiver[float32]
}

// StringBindingRequest asks for Expr to be evaluated into Receiver.
// Float formatting inside Expr uses Locale.
type StringBindingRequest struct {
	Expr     ir.DynamicString
	Locale   language.Tag
	Executor Executor
	Receiver Receiver[string]
}

// BoundDynamicType is a live binding. StartEvaluation subscribes to the
// sources and delivers the first result; Close unsubscribes. Both are
// idempotent, and StartEvaluation after Close does nothing.
type BoundDynamicType interface {
	StartEvaluation()
	Close()
}

// Evaluator binds dynamic expressions to its configured sources.
type Evaluator struct {
	cfg Config
}

// New returns an Evaluator over cfg. Providers must be keyed by a known
// platform key.
func New(cfg Config) (*Evaluator, error) {
	for key, p := range cfg.Providers {
		if !slices.Contains(ir.PlatformKeys, key) {
			return nil, fmt.Errorf("unknown platform data key %q", key)
		}
		if p == nil {
			return nil, fmt.Errorf("nil provider for %q", key)
		}
	}
	return &Evaluator{cfg: cfg}, nil
}

// BindFloat binds a float expression. The returned binding is idle until
// StartEvaluation.
func (e *Evaluator) BindFloat(req FloatBindingRequest) (BoundDynamicType, error) {
	if req.Expr == nil {
		return nil, ErrNilExpression
	}
	if err := checkFloat(req.Expr); err != nil {
		return nil, err
	}
	if req.Receiver == nil {
		return nil, errors.New("nil receiver")
	}
	b := newBinding[float32](e, req.Executor, req.Receiver)
	b.compute = func() (float32, status) { return b.evalFloat(req.Expr) }
	ir.FloatLeaves(req.Expr, b.addFloatLeaf)
	return b, nil
}

// BindString binds a string expression. The returned binding is idle until
// StartEvaluation.
func (e *Evaluator) BindString(req StringBindingRequest) (BoundDynamicType, error) {
	if req.Expr == nil {
		return nil, ErrNilExpression
	}
	if err := checkString(req.Expr); err != nil {
		return nil, err
	}
	if req.Receiver == nil {
		return nil, errors.New("nil receiver")
	}
	b := newBinding[string](e, req.Executor, req.Receiver)
	fm := newFormatter(req.Locale)
	b.compute = func() (string, status) { return b.evalString(req.Expr, fm) }
	ir.StringLeaves(req.Expr, func(s ir.DynamicString, f ir.DynamicFloat) {
		if s != nil {
			b.addStringLeaf(s)
		} else {
			b.addFloatLeaf(f)
		}
	})
	return b, nil
}

func checkFloat(e ir.DynamicFloat) error {
	switch n := e.(type) {
	case nil:
		return ErrNilExpression
	case ir.FloatConst, ir.FloatState, ir.FloatPlatform:
		return nil
	case ir.FloatTime:
		if !n.Field.Valid() {
			return fmt.Errorf("unknown time field %q", n.Field)
		}
		return nil
	case ir.FloatArith:
		if !n.Op.Valid() {
			return fmt.Errorf("unknown operator %q", n.Op)
		}
		if err := checkFloat(n.Left); err != nil {
			return fmt.Errorf("left: %w", err)
		}
		if err := checkFloat(n.Right); err != nil {
			return fmt.Errorf("right: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported float expression %T", e)
	}
}

func checkString(e ir.DynamicString) error {
	switch n := e.(type) {
	case nil:
		return ErrNilExpression
	case ir.StringConst, ir.StringState:
		return nil
	case ir.StringConcat:
		if err := checkString(n.Left); err != nil {
			return fmt.Errorf("concat: %w", err)
		}
		if err := checkString(n.Right); err != nil {
			return fmt.Errorf("concat: %w", err)
		}
		return nil
	case ir.StringFormat:
		if n.MinFractionDigits < 0 || n.MaxFractionDigits < 0 {
			return fmt.Errorf("negative fraction digits")
		}
		if err := checkFloat(n.Value); err != nil {
			return fmt.Errorf("format: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported string expression %T", e)
	}
}
