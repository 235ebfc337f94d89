package ir

// DynamicFloat is a sealed interface for float-producing expressions.
// Only FloatConst, FloatState, FloatPlatform, FloatTime and FloatArith
// implement it. All implementations are comparable, so two expressions are
// structurally equal iff they compare equal with ==.
type DynamicFloat interface {
	dynamicFloat()
	canonical() map[string]any
}

// DynamicString is a sealed interface for string-producing expressions.
// Only StringConst, StringState, StringConcat and StringFormat implement it.
type DynamicString interface {
	dynamicString()
	canonical() map[string]any
}

// Well-known platform data keys.
const (
	PlatformHeartRateBPM = "heart_rate_bpm"
	PlatformDailySteps   = "daily_steps"
)

// PlatformKeys lists the platform keys a binder may provide.
var PlatformKeys = []string{PlatformHeartRateBPM, PlatformDailySteps}

// TimeField selects a component of the time gateway clock.
type TimeField string

const (
	TimeSecond TimeField = "second"
	TimeMinute TimeField = "minute"
	TimeHour   TimeField = "hour"
)

// Valid reports whether f is a known time field.
func (f TimeField) Valid() bool {
	switch f {
	case TimeSecond, TimeMinute, TimeHour:
		return true
	}
	return false
}

// ArithOp is a binary float operator.
type ArithOp string

const (
	OpAdd ArithOp = "add"
	OpSub ArithOp = "sub"
	OpMul ArithOp = "mul"
	OpDiv ArithOp = "div"
)

// Valid reports whether op is a known operator.
func (op ArithOp) Valid() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

// FloatConst always produces Value.
type FloatConst struct {
	Value float32
}

// FloatState reads a float from the state store.
type FloatState struct {
	Key string
}

// FloatPlatform reads a float from a platform data provider (sensors).
type FloatPlatform struct {
	Key string
}

// FloatTime reads a component of the current time.
type FloatTime struct {
	Field TimeField
}

// FloatArith combines two float expressions.
type FloatArith struct {
	Op    ArithOp
	Left  DynamicFloat
	Right DynamicFloat
}

func (FloatConst) dynamicFloat()    {}
func (FloatState) dynamicFloat()    {}
func (FloatPlatform) dynamicFloat() {}
func (FloatTime) dynamicFloat()     {}
func (FloatArith) dynamicFloat()    {}

func (e FloatConst) canonical() map[string]any    { return map[string]any{"const": e.Value} }
func (e FloatState) canonical() map[string]any    { return map[string]any{"state": e.Key} }
func (e FloatPlatform) canonical() map[string]any { return map[string]any{"platform": e.Key} }
func (e FloatTime) canonical() map[string]any     { return map[string]any{"time": string(e.Field)} }

func (e FloatArith) canonical() map[string]any {
	return map[string]any{
		"op":    string(e.Op),
		"left":  canonicalFloat(e.Left),
		"right": canonicalFloat(e.Right),
	}
}

// StringConst always produces Value.
type StringConst struct {
	Value string
}

// StringState reads a string from the state store.
type StringState struct {
	Key string
}

// StringConcat joins two string expressions.
type StringConcat struct {
	Left  DynamicString
	Right DynamicString
}

// StringFormat formats a float expression using the binding's locale.
type StringFormat struct {
	Value             DynamicFloat
	MinFractionDigits int
	MaxFractionDigits int
}

func (StringConst) dynamicString()  {}
func (StringState) dynamicString()  {}
func (StringConcat) dynamicString() {}
func (StringFormat) dynamicString() {}

func (e StringConst) canonical() map[string]any { return map[string]any{"const": e.Value} }
func (e StringState) canonical() map[string]any { return map[string]any{"state": e.Key} }

func (e StringConcat) canonical() map[string]any {
	return map[string]any{"concat": []any{canonicalString(e.Left), canonicalString(e.Right)}}
}

func (e StringFormat) canonical() map[string]any {
	return map[string]any{
		"format":              canonicalFloat(e.Value),
		"min_fraction_digits": e.MinFractionDigits,
		"max_fraction_digits": e.MaxFractionDigits,
	}
}

// ConcatStrings folds parts left to right into StringConcat nodes.
// Returns nil for no parts and the part itself for one.
func ConcatStrings(parts ...DynamicString) DynamicString {
	if len(parts) == 0 {
		return nil
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = StringConcat{Left: out, Right: p}
	}
	return out
}

func canonicalFloat(e DynamicFloat) any {
	if e == nil {
		return map[string]any{}
	}
	return e.canonical()
}

func canonicalString(e DynamicString) any {
	if e == nil {
		return map[string]any{}
	}
	return e.canonical()
}

// FloatLeaves calls fn for every leaf of e in depth-first order.
func FloatLeaves(e DynamicFloat, fn func(DynamicFloat)) {
	switch n := e.(type) {
	case FloatArith:
		FloatLeaves(n.Left, fn)
		FloatLeaves(n.Right, fn)
	case nil:
	default:
		fn(n)
	}
}

// StringLeaves calls fn for every string leaf and every float leaf of e.
// Exactly one of the callback arguments is non-nil per call.
func StringLeaves(e DynamicString, fn func(DynamicString, DynamicFloat)) {
	switch n := e.(type) {
	case StringConcat:
		StringLeaves(n.Left, fn)
		StringLeaves(n.Right, fn)
	case StringFormat:
		FloatLeaves(n.Value, func(f DynamicFloat) { fn(nil, f) })
	case nil:
	default:
		fn(n, nil)
	}
}
