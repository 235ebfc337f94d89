package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
		{"whole float32", float32(3), "3"},
		{"fractional float32", float32(0.5), "0.5"},
		{"float32 shortest", float32(0.1), "0.1"},
		{"negative float64", -2.25, "-2.25"},
		{"zero float", 0.0, "0"},
		{"huge float", 1e21, "1e+21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000 - UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000":     1, // UTF-16: 0xE000
		"\U00010000": 2, // UTF-16: 0xD800, 0xDC00 (surrogate pair)
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)

	// UTF-16 order: 0xD800 < 0xE000, so U+10000 comes first
	expected := "{\"\U00010000\":2,\"\uE000\":1}"
	assert.Equal(t, expected, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<script>alert('x') & more</script>")
	require.NoError(t, err)
	assert.Equal(t, `"<script>alert('x') & more</script>"`, string(result))
	assert.NotContains(t, string(result), "\\u003c")
	assert.NotContains(t, string(result), "\\u0026")
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// Literal backslash followed by "u2028" text stays escaped.
	result, err = MarshalCanonical(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"nil record", (*Record)(nil)},
		{"NaN", math.NaN()},
		{"Inf", float32(math.Inf(1))},
		{"unsupported", struct{}{}},
		{"nested nil", map[string]any{"a": []any{nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonicalRecord(t *testing.T) {
	rec := &Record{
		Kind:               KindRangedValue,
		RangedValue:        3,
		RangedMax:          10,
		RangedDynamicValue: FloatState{Key: "level"},
		ShortText:          DynamicText("--", StringFormat{Value: FloatState{Key: "level"}, MaxFractionDigits: 1}),
	}

	result, err := MarshalCanonical(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"kind":"RANGED_VALUE",`+
			`"ranged":{"dynamic":{"state":"level"},"max":10,"min":0,"value":3},`+
			`"short_text":{"dynamic":{"format":{"state":"level"},"max_fraction_digits":1,"min_fraction_digits":0},"text":"--"}}`,
		string(result))
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	rec := &Record{
		Kind:        KindLongText,
		LongText:    PlainText("a"),
		LongTitle:   PlainText("b"),
		ListEntries: []*Record{{Kind: KindShortText, ShortText: PlainText("x")}},
		Placeholder: &Record{Kind: KindLongText, LongText: PlainText("...")},
	}

	first, err := MarshalCanonical(rec)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(rec)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
