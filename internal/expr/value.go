package expr

import "fmt"

// Value is a sealed interface for state store values.
// Only Float and String implement it.
type Value interface {
	value()
	fmt.Stringer
}

// Float is a float state value.
type Float float32

// String is a string state value.
type String string

func (Float) value()  {}
func (String) value() {}

func (f Float) String() string  { return fmt.Sprintf("%g", float32(f)) }
func (s String) String() string { return string(s) }
