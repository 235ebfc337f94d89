package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/dyneval/internal/ir"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Diff     string       // go-cmp diff (-expected +actual), if any
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Diff != "" {
		fmt.Fprintf(&buf, "  Diff (-expected +actual):\n%s", e.Diff)
	}

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s\n", entry.Seq, entry.Step, entry.Record)
		}
	}
	return buf.String()
}

// checkStep records a failure for each unmet expectation of step i.
func checkStep(result *Result, i int, step Step, latest *ir.Record) {
	var err error
	switch {
	case step.ExpectPending:
		if latest != nil {
			err = &AssertionError{Type: "expect_pending", Expected: "no emission", Actual: latest.String()}
		}
	case step.ExpectInvalid:
		if !ir.IsInvalid(latest) {
			err = &AssertionError{Type: "expect_invalid", Expected: "INVALID", Actual: latest.String()}
		}
	case step.Expect != nil:
		if mErr := matchRecord("expect", latest, step.Expect); mErr != nil {
			err = mErr
		}
	}
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a list of error messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEmissionCount:
		if len(result.Trace) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d settled emissions", a.Count),
				Actual:   fmt.Sprintf("%d settled emissions", len(result.Trace)),
				Trace:    result.Trace,
			}
		}
	case AssertFinal:
		if err := matchRecord(a.Type, result.Last(), a.Expect); err != nil {
			err.Trace = result.Trace
			return err
		}
	case AssertNeverInvalid:
		for _, entry := range result.Trace {
			if entry.Invalid {
				return &AssertionError{
					Type:     a.Type,
					Expected: "no invalid emission",
					Actual:   fmt.Sprintf("invalid at seq %d (step %d)", entry.Seq, entry.Step),
					Trace:    result.Trace,
				}
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// matchRecord subset-matches expected against rec's canonical form.
func matchRecord(typ string, rec *ir.Record, expected map[string]any) *AssertionError {
	if rec == nil {
		return &AssertionError{Type: typ, Expected: fmt.Sprint(expected), Actual: "no emission"}
	}
	if ir.IsInvalid(rec) {
		return &AssertionError{Type: typ, Expected: fmt.Sprint(expected), Actual: "INVALID"}
	}
	actual, err := canonicalValue(rec)
	if err != nil {
		return &AssertionError{Type: typ, Expected: fmt.Sprint(expected), Actual: err.Error()}
	}
	want := normalize(expected)
	got := project(actual, want)
	if cmp.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprint(want),
		Actual:   rec.String(),
		Diff:     cmp.Diff(want, got),
	}
}

// canonicalValue decodes rec's canonical JSON into plain Go values, so
// numbers are float64 like normalized expectations.
func canonicalValue(rec *ir.Record) (any, error) {
	data, err := ir.MarshalCanonical(rec)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalize converts YAML-parsed numbers to float64.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// project keeps only the parts of actual that want mentions. Lists keep
// their actual length so a length mismatch shows up in the diff.
func project(actual, want any) any {
	switch w := want.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return actual
		}
		out := make(map[string]any, len(w))
		for k, wv := range w {
			if av, ok := a[k]; ok {
				out[k] = project(av, wv)
			}
		}
		return out
	case []any:
		a, ok := actual.([]any)
		if !ok {
			return actual
		}
		out := make([]any, len(a))
		for i, av := range a {
			if i < len(w) {
				out[i] = project(av, w[i])
			} else {
				out[i] = av
			}
		}
		return out
	}
	return actual
}
