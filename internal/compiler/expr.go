package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/dyneval/internal/ir"
)

// lookup returns the first of labels present in v.
func lookup(v cue.Value, labels ...string) (string, cue.Value, bool) {
	for _, l := range labels {
		if fv := v.LookupPath(cue.ParsePath(l)); fv.Exists() {
			return l, fv, true
		}
	}
	return "", cue.Value{}, false
}

func compileFloat(v cue.Value, path string) (ir.DynamicFloat, error) {
	if n, err := v.Float64(); err == nil {
		return ir.FloatConst{Value: float32(n)}, nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "float expression must be a number or struct", Pos: v.Pos()}
	}

	label, fv, ok := lookup(v, "const", "state", "platform", "time", "op")
	if !ok {
		return nil, &CompileError{
			Field:   path,
			Message: "float expression needs one of const, state, platform, time, op",
			Pos:     v.Pos(),
		}
	}
	switch label {
	case "const":
		n, err := fv.Float64()
		if err != nil {
			return nil, &CompileError{Field: path + ".const", Message: "must be a number", Pos: fv.Pos()}
		}
		return ir.FloatConst{Value: float32(n)}, nil
	case "state":
		key, err := requireString(fv, path+".state")
		if err != nil {
			return nil, err
		}
		return ir.FloatState{Key: key}, nil
	case "platform":
		key, err := requireString(fv, path+".platform")
		if err != nil {
			return nil, err
		}
		return ir.FloatPlatform{Key: key}, nil
	case "time":
		field, err := requireString(fv, path+".time")
		if err != nil {
			return nil, err
		}
		return ir.FloatTime{Field: ir.TimeField(field)}, nil
	default:
		op, err := requireString(fv, path+".op")
		if err != nil {
			return nil, err
		}
		left, err := compileOperand(v, path, "left")
		if err != nil {
			return nil, err
		}
		right, err := compileOperand(v, path, "right")
		if err != nil {
			return nil, err
		}
		return ir.FloatArith{Op: ir.ArithOp(op), Left: left, Right: right}, nil
	}
}

func compileOperand(v cue.Value, path, label string) (ir.DynamicFloat, error) {
	ov := v.LookupPath(cue.ParsePath(label))
	if !ov.Exists() {
		return nil, &CompileError{Field: path + "." + label, Message: "operand is required", Pos: v.Pos()}
	}
	return compileFloat(ov, path+"."+label)
}

func compileString(v cue.Value, path string) (ir.DynamicString, error) {
	if s, err := v.String(); err == nil {
		return ir.StringConst{Value: s}, nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "string expression must be a string or struct", Pos: v.Pos()}
	}

	label, fv, ok := lookup(v, "const", "state", "concat", "format")
	if !ok {
		return nil, &CompileError{
			Field:   path,
			Message: "string expression needs one of const, state, concat, format",
			Pos:     v.Pos(),
		}
	}
	switch label {
	case "const":
		s, err := requireString(fv, path+".const")
		if err != nil {
			return nil, err
		}
		return ir.StringConst{Value: s}, nil
	case "state":
		key, err := requireString(fv, path+".state")
		if err != nil {
			return nil, err
		}
		return ir.StringState{Key: key}, nil
	case "concat":
		iter, err := fv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var parts []ir.DynamicString
		for i := 0; iter.Next(); i++ {
			part, err := compileString(iter.Value(), fmt.Sprintf("%s.concat[%d]", path, i))
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		if len(parts) == 0 {
			return nil, &CompileError{Field: path + ".concat", Message: "concat needs at least one part", Pos: fv.Pos()}
		}
		return ir.ConcatStrings(parts...), nil
	default:
		value, err := compileFloat(fv, path+".format")
		if err != nil {
			return nil, err
		}
		minDigits, err := optionalInt(v, path, "min_fraction_digits")
		if err != nil {
			return nil, err
		}
		maxDigits, err := optionalInt(v, path, "max_fraction_digits")
		if err != nil {
			return nil, err
		}
		return ir.StringFormat{Value: value, MinFractionDigits: minDigits, MaxFractionDigits: maxDigits}, nil
	}
}

func requireString(v cue.Value, path string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: v.Pos()}
	}
	return s, nil
}

func optionalInt(v cue.Value, path, label string) (int, error) {
	iv := v.LookupPath(cue.ParsePath(label))
	if !iv.Exists() {
		return 0, nil
	}
	n, err := iv.Int64()
	if err != nil {
		return 0, &CompileError{Field: path + "." + label, Message: "must be an integer", Pos: iv.Pos()}
	}
	return int(n), nil
}
