package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/ir"
)

func compileOne(t *testing.T, src, name string) (*ir.Record, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("records.cue"))
	require.NoError(t, v.Err())
	return CompileRecord(v.LookupPath(cue.ParsePath("record." + name)))
}

func TestCompileRecordFull(t *testing.T) {
	rec, err := compileOne(t, `
		record: heart: {
			kind: "RANGED_VALUE"
			ranged: {
				value: 60
				min: 0
				max: 220.5
				dynamic: {op: "mul", left: {platform: "heart_rate_bpm"}, right: 2}
			}
			short_text: {
				text: "--"
				dynamic: {concat: [{format: {platform: "heart_rate_bpm"}, min_fraction_digits: 1, max_fraction_digits: 2}, " bpm"]}
			}
			short_title: "HR"
			content_description: {text: "heart", dynamic: {state: "label"}}
			timeline: [{kind: "SHORT_TEXT", short_text: "later"}]
			list: [{kind: "EMPTY"}, {kind: "RANGED_VALUE", ranged: {dynamic: {time: "minute"}, max: 59}}]
			placeholder: {kind: "SHORT_TEXT", short_text: {dynamic: {const: "..."}}}
		}
	`, "heart")
	require.NoError(t, err)

	assert.Equal(t, ir.KindRangedValue, rec.Kind)
	assert.Equal(t, float32(60), rec.RangedValue)
	assert.Equal(t, float32(220.5), rec.RangedMax)
	assert.Equal(t, ir.FloatArith{
		Op:    ir.OpMul,
		Left:  ir.FloatPlatform{Key: ir.PlatformHeartRateBPM},
		Right: ir.FloatConst{Value: 2},
	}, rec.RangedDynamicValue)

	assert.Equal(t, "--", rec.ShortText.Value)
	assert.Equal(t, ir.StringConcat{
		Left:  ir.StringFormat{Value: ir.FloatPlatform{Key: ir.PlatformHeartRateBPM}, MinFractionDigits: 1, MaxFractionDigits: 2},
		Right: ir.StringConst{Value: " bpm"},
	}, rec.ShortText.Dynamic)
	assert.Equal(t, ir.PlainText("HR"), rec.ShortTitle)
	assert.Equal(t, ir.DynamicText("heart", ir.StringState{Key: "label"}), rec.ContentDescription)
	assert.Nil(t, rec.LongText)

	require.Len(t, rec.TimelineEntries, 1)
	assert.Equal(t, ir.PlainText("later"), rec.TimelineEntries[0].ShortText)
	require.Len(t, rec.ListEntries, 2)
	assert.Equal(t, ir.KindEmpty, rec.ListEntries[0].Kind)
	assert.Equal(t, ir.FloatTime{Field: ir.TimeMinute}, rec.ListEntries[1].RangedDynamicValue)

	require.NotNil(t, rec.Placeholder)
	assert.Equal(t, ir.StringConst{Value: "..."}, rec.Placeholder.ShortText.Dynamic)
}

func TestCompileRecordMissingKind(t *testing.T) {
	_, err := compileOne(t, `record: bad: { short_text: "x" }`, "bad")

	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "record.kind", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "records.cue:")
}

func TestCompileRecordBadExpressions(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			"float without selector",
			`record: r: { kind: "RANGED_VALUE", ranged: { dynamic: { nope: 1 } } }`,
			"record.ranged.dynamic",
		},
		{
			"missing operand",
			`record: r: { kind: "RANGED_VALUE", ranged: { dynamic: { op: "add", left: 1 } } }`,
			"record.ranged.dynamic.right",
		},
		{
			"state not a string",
			`record: r: { kind: "SHORT_TEXT", short_text: { dynamic: { state: 3 } } }`,
			"record.short_text.dynamic.state",
		},
		{
			"empty concat",
			`record: r: { kind: "SHORT_TEXT", short_text: { dynamic: { concat: [] } } }`,
			"record.short_text.dynamic.concat",
		},
		{
			"fraction digits not int",
			`record: r: { kind: "SHORT_TEXT", short_text: { dynamic: { format: 1, min_fraction_digits: "two" } } }`,
			"record.short_text.dynamic.min_fraction_digits",
		},
		{
			"nested entry",
			`record: r: { kind: "SHORT_TEXT", list: [{ kind: "EMPTY" }, { short_text: "x" }] }`,
			"record.list[1].kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "r")
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileRecordsOrder(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		record: zeta: { kind: "EMPTY" }
		record: alpha: { kind: "NO_DATA" }
	`)

	recs, err := CompileRecords(v)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "zeta", recs[0].Name)
	assert.Equal(t, "alpha", recs[1].Name)
	assert.Equal(t, ir.KindNoData, recs[1].Record.Kind)
}

func TestCompileRecordsNone(t *testing.T) {
	recs, err := CompileRecords(cuecontext.New().CompileString(`other: 1`))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCompileRecordsCUEError(t *testing.T) {
	v := cuecontext.New().CompileString(`record: r: { kind: "EMPTY" & "NO_DATA" }`, cue.Filename("conflict.cue"))

	_, err := CompileRecords(v)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	rec := &ir.Record{
		Kind:               "SPARKLE",
		RangedMin:          10,
		RangedMax:          1,
		RangedDynamicValue: ir.FloatArith{Op: "pow", Left: ir.FloatPlatform{Key: "blood_oxygen"}, Right: ir.FloatTime{Field: "week"}},
		ShortText: ir.DynamicText("", ir.ConcatStrings(
			ir.StringState{},
			ir.StringFormat{Value: ir.FloatConst{Value: 1}, MinFractionDigits: -1},
		)),
		ListEntries: []*ir.Record{{Kind: ir.KindEmpty, RangedValue: 5, RangedMax: 4}},
	}

	errs := Validate(rec)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{
		ErrUnknownKind,
		ErrRangedBounds,
		ErrUnknownOperator,
		ErrUnknownPlatform,
		ErrUnknownTimeField,
		ErrEmptyStateKey,
		ErrNegativeDigits,
		ErrRangedOutOfBounds,
	}, codes)
	assert.Equal(t, "record.list[0].ranged.value", errs[len(errs)-1].Field)
	assert.Contains(t, errs[0].Error(), "[E201] record.kind")
}

func TestValidateClean(t *testing.T) {
	rec, err := compileOne(t, `
		record: ok: {
			kind: "RANGED_VALUE"
			ranged: { min: 0, max: 100, dynamic: { state: "level" } }
			placeholder: { kind: "SHORT_TEXT", short_text: "--" }
		}
	`, "ok")
	require.NoError(t, err)
	assert.Empty(t, Validate(rec))
}

func TestValidateAllDuplicates(t *testing.T) {
	recs := []NamedRecord{
		{Name: "a", Record: &ir.Record{Kind: ir.KindEmpty}},
		{Name: "a", Record: &ir.Record{Kind: ir.KindEmpty}},
	}
	errs := ValidateAll(recs)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateRecord, errs[0].Code)
}
