package ir

import "fmt"

// Kind is the record discriminant.
type Kind string

const (
	KindNoData        Kind = "NO_DATA"
	KindEmpty         Kind = "EMPTY"
	KindNotConfigured Kind = "NOT_CONFIGURED"
	KindShortText     Kind = "SHORT_TEXT"
	KindLongText      Kind = "LONG_TEXT"
	KindRangedValue   Kind = "RANGED_VALUE"
	KindGoalProgress  Kind = "GOAL_PROGRESS"
	KindNoPermission  Kind = "NO_PERMISSION"
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	KindNoData,
	KindEmpty,
	KindNotConfigured,
	KindShortText,
	KindLongText,
	KindRangedValue,
	KindGoalProgress,
	KindNoPermission,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Text is a text-bearing field. Dynamic, when set, produces Value at
// evaluation time; Value is then the fallback until the first result.
type Text struct {
	Value   string
	Dynamic DynamicString
}

// PlainText returns a Text without a dynamic expression.
func PlainText(value string) *Text {
	return &Text{Value: value}
}

// DynamicText returns a Text backed by expr with a fallback value.
func DynamicText(fallback string, expr DynamicString) *Text {
	return &Text{Value: fallback, Dynamic: expr}
}

// IsDynamic reports whether the text carries an expression.
func (t *Text) IsDynamic() bool {
	return t != nil && t.Dynamic != nil
}

func textEqual(a, b *Text) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Value == b.Value && a.Dynamic == b.Dynamic
}

// Record is a complication-style data record. Records are immutable once
// shared: evaluation copies with Clone or the With* helpers and never writes
// through a pointer it did not create.
type Record struct {
	Kind Kind

	RangedValue        float32
	RangedMin          float32
	RangedMax          float32
	RangedDynamicValue DynamicFloat

	LongText           *Text
	LongTitle          *Text
	ShortText          *Text
	ShortTitle         *Text
	ContentDescription *Text

	TimelineEntries []*Record
	ListEntries     []*Record
	Placeholder     *Record
}

// InvalidRecord is the sentinel for "no valid data". It is identified by
// pointer; a different NO_DATA record with the same content is not invalid.
var InvalidRecord = &Record{Kind: KindNoData}

// IsInvalid reports whether r is the invalid sentinel.
func IsInvalid(r *Record) bool {
	return r == InvalidRecord
}

// Clone returns a shallow copy. Slices are shared; callers replacing a
// slice must assign a new one rather than writing elements in place.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// WithRangedValue returns a copy with the ranged value set.
func (r *Record) WithRangedValue(v float32) *Record {
	c := r.Clone()
	c.RangedValue = v
	return c
}

// WithRangedDynamicValue returns a copy with the ranged expression replaced.
func (r *Record) WithRangedDynamicValue(e DynamicFloat) *Record {
	c := r.Clone()
	c.RangedDynamicValue = e
	return c
}

// WithTimelineEntries returns a copy with the timeline replaced.
func (r *Record) WithTimelineEntries(entries []*Record) *Record {
	c := r.Clone()
	c.TimelineEntries = append([]*Record(nil), entries...)
	return c
}

// WithListEntries returns a copy with the list entries replaced.
func (r *Record) WithListEntries(entries []*Record) *Record {
	c := r.Clone()
	c.ListEntries = append([]*Record(nil), entries...)
	return c
}

// WithPlaceholder returns a copy with the placeholder replaced (nil clears).
func (r *Record) WithPlaceholder(p *Record) *Record {
	c := r.Clone()
	c.Placeholder = p
	return c
}

// Texts returns the text fields keyed by canonical name, skipping nil ones.
func (r *Record) Texts() map[string]*Text {
	out := make(map[string]*Text, 5)
	for name, t := range map[string]*Text{
		"long_text":           r.LongText,
		"long_title":          r.LongTitle,
		"short_text":          r.ShortText,
		"short_title":         r.ShortTitle,
		"content_description": r.ContentDescription,
	} {
		if t != nil {
			out[name] = t
		}
	}
	return out
}

// HasDynamicValues reports whether r or any nested record carries an
// expression.
func (r *Record) HasDynamicValues() bool {
	if r == nil {
		return false
	}
	if r.RangedDynamicValue != nil {
		return true
	}
	for _, t := range r.Texts() {
		if t.IsDynamic() {
			return true
		}
	}
	for _, e := range r.TimelineEntries {
		if e.HasDynamicValues() {
			return true
		}
	}
	for _, e := range r.ListEntries {
		if e.HasDynamicValues() {
			return true
		}
	}
	return r.Placeholder.HasDynamicValues()
}

// Equal reports structural equality. Nil and empty entry lists are equal.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r == o {
		return true
	}
	if r.Kind != o.Kind ||
		r.RangedValue != o.RangedValue ||
		r.RangedMin != o.RangedMin ||
		r.RangedMax != o.RangedMax ||
		r.RangedDynamicValue != o.RangedDynamicValue {
		return false
	}
	if !textEqual(r.LongText, o.LongText) ||
		!textEqual(r.LongTitle, o.LongTitle) ||
		!textEqual(r.ShortText, o.ShortText) ||
		!textEqual(r.ShortTitle, o.ShortTitle) ||
		!textEqual(r.ContentDescription, o.ContentDescription) {
		return false
	}
	if !entriesEqual(r.TimelineEntries, o.TimelineEntries) ||
		!entriesEqual(r.ListEntries, o.ListEntries) {
		return false
	}
	return r.Placeholder.Equal(o.Placeholder)
}

func entriesEqual(a, b []*Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Canonical returns the canonical map form of r, suitable for
// MarshalCanonical. Zero-valued optional fields are omitted.
func (r *Record) Canonical() map[string]any {
	out := map[string]any{"kind": string(r.Kind)}

	if r.RangedValue != 0 || r.RangedMin != 0 || r.RangedMax != 0 || r.RangedDynamicValue != nil {
		ranged := map[string]any{
			"value": r.RangedValue,
			"min":   r.RangedMin,
			"max":   r.RangedMax,
		}
		if r.RangedDynamicValue != nil {
			ranged["dynamic"] = r.RangedDynamicValue.canonical()
		}
		out["ranged"] = ranged
	}

	for name, t := range r.Texts() {
		text := map[string]any{"text": t.Value}
		if t.Dynamic != nil {
			text["dynamic"] = t.Dynamic.canonical()
		}
		out[name] = text
	}

	if len(r.TimelineEntries) > 0 {
		out["timeline"] = canonicalEntries(r.TimelineEntries)
	}
	if len(r.ListEntries) > 0 {
		out["list"] = canonicalEntries(r.ListEntries)
	}
	if r.Placeholder != nil {
		out["placeholder"] = r.Placeholder.Canonical()
	}
	return out
}

func canonicalEntries(entries []*Record) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.Canonical()
	}
	return out
}

// String renders r as canonical JSON, marking the invalid sentinel.
func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	if IsInvalid(r) {
		return "INVALID"
	}
	b, err := MarshalCanonical(r)
	if err != nil {
		return fmt.Sprintf("Record{kind=%s, err=%v}", r.Kind, err)
	}
	return string(b)
}
