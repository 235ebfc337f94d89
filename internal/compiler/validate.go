package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/dyneval/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownKind       = "E201" // kind is not a known record kind
	ErrRangedBounds      = "E202" // ranged min > max
	ErrUnknownPlatform   = "E203" // platform key has no provider
	ErrUnknownOperator   = "E204" // arithmetic operator not recognised
	ErrUnknownTimeField  = "E205" // time field not recognised
	ErrNegativeDigits    = "E206" // fraction digits below zero
	ErrEmptyStateKey     = "E207" // state expression without a key
	ErrDuplicateRecord   = "E208" // record name declared twice
	ErrRangedOutOfBounds = "E209" // static ranged value outside [min, max]
)

// ValidationError represents a record validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks rec and all nested records. Returns every problem found
// (does not fail fast).
func Validate(rec *ir.Record) []ValidationError {
	var errs []ValidationError
	validateRecord(rec, "record", &errs)
	return errs
}

// ValidateAll validates every record and reports duplicate names.
func ValidateAll(recs []NamedRecord) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for _, nr := range recs {
		if seen[nr.Name] {
			errs = append(errs, ValidationError{
				Field:   "record." + nr.Name,
				Message: "record declared more than once",
				Code:    ErrDuplicateRecord,
			})
		}
		seen[nr.Name] = true
		validateRecord(nr.Record, "record."+nr.Name, &errs)
	}
	return errs
}

func validateRecord(rec *ir.Record, path string, errs *[]ValidationError) {
	if rec == nil {
		return
	}
	if !rec.Kind.Valid() {
		*errs = append(*errs, ValidationError{
			Field:   path + ".kind",
			Message: fmt.Sprintf("unknown kind %q", rec.Kind),
			Code:    ErrUnknownKind,
		})
	}
	if rec.RangedMin > rec.RangedMax {
		*errs = append(*errs, ValidationError{
			Field:   path + ".ranged",
			Message: fmt.Sprintf("min %g is greater than max %g", rec.RangedMin, rec.RangedMax),
			Code:    ErrRangedBounds,
		})
	} else if rec.RangedDynamicValue == nil && (rec.RangedValue < rec.RangedMin || rec.RangedValue > rec.RangedMax) {
		*errs = append(*errs, ValidationError{
			Field:   path + ".ranged.value",
			Message: fmt.Sprintf("value %g outside [%g, %g]", rec.RangedValue, rec.RangedMin, rec.RangedMax),
			Code:    ErrRangedOutOfBounds,
		})
	}
	if rec.RangedDynamicValue != nil {
		validateFloat(rec.RangedDynamicValue, path+".ranged.dynamic", errs)
	}

	texts := rec.Texts()
	names := make([]string, 0, len(texts))
	for name := range texts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if t := texts[name]; t.Dynamic != nil {
			validateString(t.Dynamic, path+"."+name+".dynamic", errs)
		}
	}

	for i, e := range rec.TimelineEntries {
		validateRecord(e, fmt.Sprintf("%s.timeline[%d]", path, i), errs)
	}
	for i, e := range rec.ListEntries {
		validateRecord(e, fmt.Sprintf("%s.list[%d]", path, i), errs)
	}
	validateRecord(rec.Placeholder, path+".placeholder", errs)
}

func validateFloat(e ir.DynamicFloat, path string, errs *[]ValidationError) {
	switch n := e.(type) {
	case ir.FloatState:
		if n.Key == "" {
			*errs = append(*errs, ValidationError{Field: path, Message: "state key is empty", Code: ErrEmptyStateKey})
		}
	case ir.FloatPlatform:
		if !slices.Contains(ir.PlatformKeys, n.Key) {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown platform key %q", n.Key),
				Code:    ErrUnknownPlatform,
			})
		}
	case ir.FloatTime:
		if !n.Field.Valid() {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown time field %q", n.Field),
				Code:    ErrUnknownTimeField,
			})
		}
	case ir.FloatArith:
		if !n.Op.Valid() {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown operator %q", n.Op),
				Code:    ErrUnknownOperator,
			})
		}
		validateFloat(n.Left, path+".left", errs)
		validateFloat(n.Right, path+".right", errs)
	}
}

func validateString(e ir.DynamicString, path string, errs *[]ValidationError) {
	switch n := e.(type) {
	case ir.StringState:
		if n.Key == "" {
			*errs = append(*errs, ValidationError{Field: path, Message: "state key is empty", Code: ErrEmptyStateKey})
		}
	case ir.StringConcat:
		validateString(n.Left, path, errs)
		validateString(n.Right, path, errs)
	case ir.StringFormat:
		if n.MinFractionDigits < 0 || n.MaxFractionDigits < 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "fraction digits must not be negative",
				Code:    ErrNegativeDigits,
			})
		}
		validateFloat(n.Value, path+".format", errs)
	}
}
