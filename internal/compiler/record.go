package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/dyneval/internal/ir"
)

// NamedRecord is a compiled record and the label it was declared under.
type NamedRecord struct {
	Name   string
	Record *ir.Record
}

// textFields maps CUE labels to the record's text fields.
var textFields = []struct {
	label string
	set   func(*ir.Record, *ir.Text)
}{
	{"long_text", func(r *ir.Record, t *ir.Text) { r.LongText = t }},
	{"long_title", func(r *ir.Record, t *ir.Text) { r.LongTitle = t }},
	{"short_text", func(r *ir.Record, t *ir.Text) { r.ShortText = t }},
	{"short_title", func(r *ir.Record, t *ir.Text) { r.ShortTitle = t }},
	{"content_description", func(r *ir.Record, t *ir.Text) { r.ContentDescription = t }},
}

// CompileRecords compiles every record declared under "record" in v, in
// declaration order.
func CompileRecords(v cue.Value) ([]NamedRecord, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	recVal := v.LookupPath(cue.ParsePath("record"))
	if !recVal.Exists() {
		return nil, nil
	}
	iter, err := recVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []NamedRecord
	for iter.Next() {
		rec, err := CompileRecord(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, NamedRecord{Name: iter.Label(), Record: rec})
	}
	return out, nil
}

// CompileRecord parses a CUE struct into an ir.Record.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`record: steps: { kind: "SHORT_TEXT", ... }`)
//	rec, err := CompileRecord(v.LookupPath(cue.ParsePath("record.steps")))
func CompileRecord(v cue.Value) (*ir.Record, error) {
	return compileRecord(v, "record")
}

func compileRecord(v cue.Value, path string) (*ir.Record, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "record must be a struct", Pos: v.Pos()}
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{Field: path + ".kind", Message: "kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rec := &ir.Record{Kind: ir.Kind(kind)}

	if err := compileRanged(v, path, rec); err != nil {
		return nil, err
	}

	for _, tf := range textFields {
		tv := v.LookupPath(cue.ParsePath(tf.label))
		if !tv.Exists() {
			continue
		}
		t, err := compileText(tv, path+"."+tf.label)
		if err != nil {
			return nil, err
		}
		tf.set(rec, t)
	}

	if rec.TimelineEntries, err = compileEntries(v, path, "timeline"); err != nil {
		return nil, err
	}
	if rec.ListEntries, err = compileEntries(v, path, "list"); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("placeholder")); pv.Exists() {
		if rec.Placeholder, err = compileRecord(pv, path+".placeholder"); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func compileRanged(v cue.Value, path string, rec *ir.Record) error {
	rv := v.LookupPath(cue.ParsePath("ranged"))
	if !rv.Exists() {
		return nil
	}
	path += ".ranged"

	for _, f := range []struct {
		label string
		dst   *float32
	}{
		{"value", &rec.RangedValue},
		{"min", &rec.RangedMin},
		{"max", &rec.RangedMax},
	} {
		fv := rv.LookupPath(cue.ParsePath(f.label))
		if !fv.Exists() {
			continue
		}
		n, err := fv.Float64()
		if err != nil {
			return &CompileError{Field: path + "." + f.label, Message: "must be a number", Pos: fv.Pos()}
		}
		*f.dst = float32(n)
	}

	if dv := rv.LookupPath(cue.ParsePath("dynamic")); dv.Exists() {
		e, err := compileFloat(dv, path+".dynamic")
		if err != nil {
			return err
		}
		rec.RangedDynamicValue = e
	}
	return nil
}

// compileText accepts a bare string or {text, dynamic}.
func compileText(v cue.Value, path string) (*ir.Text, error) {
	if s, err := v.String(); err == nil {
		return ir.PlainText(s), nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "text must be a string or {text, dynamic}", Pos: v.Pos()}
	}

	t := &ir.Text{}
	if tv := v.LookupPath(cue.ParsePath("text")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.Value = s
	}
	if dv := v.LookupPath(cue.ParsePath("dynamic")); dv.Exists() {
		e, err := compileString(dv, path+".dynamic")
		if err != nil {
			return nil, err
		}
		t.Dynamic = e
	}
	return t, nil
}

func compileEntries(v cue.Value, path, label string) ([]*ir.Record, error) {
	lv := v.LookupPath(cue.ParsePath(label))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*ir.Record
	for i := 0; iter.Next(); i++ {
		rec, err := compileRecord(iter.Value(), fmt.Sprintf("%s.%s[%d]", path, label, i))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
