package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
	"github.com/roach88/dyneval/internal/telemetry"
)

// fieldKind enumerates the record fields that can carry an expression.
type fieldKind int

const (
	fieldRangedValue fieldKind = iota
	fieldLongText
	fieldLongTitle
	fieldShortText
	fieldShortTitle
	fieldContentDescription
)

// fieldKinds lists every field kind in the order receivers are created.
var fieldKinds = []fieldKind{
	fieldRangedValue,
	fieldLongText,
	fieldLongTitle,
	fieldShortText,
	fieldShortTitle,
	fieldContentDescription,
}

func (k fieldKind) String() string {
	switch k {
	case fieldRangedValue:
		return "ranged_value"
	case fieldLongText:
		return "long_text"
	case fieldLongTitle:
		return "long_title"
	case fieldShortText:
		return "short_text"
	case fieldShortTitle:
		return "short_title"
	case fieldContentDescription:
		return "content_description"
	}
	return fmt.Sprintf("field(%d)", int(k))
}

// text returns the text field k of r. Nil for fieldRangedValue.
func (k fieldKind) text(r *ir.Record) *ir.Text {
	switch k {
	case fieldLongText:
		return r.LongText
	case fieldLongTitle:
		return r.LongTitle
	case fieldShortText:
		return r.ShortText
	case fieldShortTitle:
		return r.ShortTitle
	case fieldContentDescription:
		return r.ContentDescription
	}
	return nil
}

func (k fieldKind) withText(r *ir.Record, t *ir.Text) *ir.Record {
	c := r.Clone()
	switch k {
	case fieldLongText:
		c.LongText = t
	case fieldLongTitle:
		c.LongTitle = t
	case fieldShortText:
		c.ShortText = t
	case fieldShortTitle:
		c.ShortTitle = t
	case fieldContentDescription:
		c.ContentDescription = t
	}
	return c
}

// dynamic reports whether field k of r carries an expression.
func (k fieldKind) dynamic(r *ir.Record) bool {
	if k == fieldRangedValue {
		return r.RangedDynamicValue != nil
	}
	return k.text(r).IsDynamic()
}

// dynamicFields returns the fields of r that need a receiver.
func dynamicFields(r *ir.Record) []fieldKind {
	var out []fieldKind
	for _, k := range fieldKinds {
		if k.dynamic(r) {
			out = append(out, k)
		}
	}
	return out
}

// setRangedValue stores v, dropping the expression unless keep is set.
func setRangedValue(r *ir.Record, v float32, keep bool) *ir.Record {
	out := r.WithRangedValue(v)
	if !keep {
		out.RangedDynamicValue = nil
	}
	return out
}

// setText stores v in field k, keeping e next to it if keep is set.
func setText(r *ir.Record, k fieldKind, v string, e ir.DynamicString, keep bool) *ir.Record {
	t := ir.PlainText(v)
	if keep {
		t = ir.DynamicText(v, e)
	}
	return k.withText(r, t)
}

// receiver connects one dynamic field to its session. It is closed exactly
// once, when the session is disposed or fails to initialize.
type receiver struct {
	index   int
	field   fieldKind
	session *session
	bound   BoundDynamicType
	closed  atomic.Bool
}

// bind creates the underlying binding without starting it.
func (r *receiver) bind(b Binder, rec *ir.Record) error {
	ev := r.session.ev
	var (
		bound BoundDynamicType
		err   error
	)
	switch r.field {
	case fieldRangedValue:
		e := rec.RangedDynamicValue
		bound, err = b.BindFloat(expr.FloatBindingRequest{
			Expr:     e,
			Executor: ev.executor,
			Receiver: expr.ReceiverFuncs[float32]{
				Data: func(v float32) {
					r.post(valueEvent{index: r.index, apply: func(d *ir.Record) *ir.Record {
						return setRangedValue(d, v, ev.keepDynamic)
					}})
				},
				Invalidated: r.invalidated,
			},
		})
	default:
		e := r.field.text(rec).Dynamic
		bound, err = b.BindString(expr.StringBindingRequest{
			Expr:     e,
			Locale:   ev.locale,
			Executor: ev.executor,
			Receiver: expr.ReceiverFuncs[string]{
				Data: func(v string) {
					r.post(valueEvent{index: r.index, apply: func(d *ir.Record) *ir.Record {
						return setText(d, r.field, v, e, ev.keepDynamic)
					}})
				},
				Invalidated: r.invalidated,
			},
		})
	}
	if err != nil {
		return err
	}
	r.bound = bound
	return nil
}

func (r *receiver) invalidated() {
	r.post(invalidatedEvent{index: r.index})
}

// post forwards ev to the session unless this receiver or the session is
// already torn down; late callbacks are dropped.
func (r *receiver) post(ev receiverEvent) {
	if r.closed.Load() || r.session.disposed.Load() {
		return
	}
	label := telemetry.EventValue
	if _, ok := ev.(invalidatedEvent); ok {
		label = telemetry.EventInvalidated
	}
	r.session.ev.metrics.ReceiverEvent(label)
	r.session.cell.update(func(s *evalState) *evalState {
		return transition(s, ev)
	})
}

func (r *receiver) start() {
	if r.closed.Load() || r.bound == nil {
		return
	}
	r.bound.StartEvaluation()
}

func (r *receiver) close() {
	if r.closed.Swap(true) {
		return
	}
	if r.bound != nil {
		r.bound.Close()
	}
}
