package harness

import "github.com/roach88/dyneval/internal/ir"

// TraceEntry is one settled emission.
type TraceEntry struct {
	// Step is 0 for the initial subscription and i+1 after steps[i].
	Step int `json:"step"`

	// Seq numbers entries from 1.
	Seq int64 `json:"seq"`

	// Invalid marks the invalid sentinel.
	Invalid bool `json:"invalid"`

	// Record is the settled record.
	Record *ir.Record `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains the settled emissions in order.
	Trace []TraceEntry `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Emissions counts every record the stream delivered, settled or not.
	// Informational only: conflation makes it timing dependent.
	Emissions int `json:"emissions"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEntry appends rec unless it repeats the previous entry.
func (r *Result) addEntry(step int, rec *ir.Record) {
	if rec == nil {
		return
	}
	if n := len(r.Trace); n > 0 {
		prev := r.Trace[n-1].Record
		if prev == rec || (!ir.IsInvalid(prev) && !ir.IsInvalid(rec) && prev.Equal(rec)) {
			return
		}
	}
	r.Trace = append(r.Trace, TraceEntry{
		Step:    step,
		Seq:     int64(len(r.Trace) + 1),
		Invalid: ir.IsInvalid(rec),
		Record:  rec,
	})
}

// Last returns the last trace entry's record, or nil.
func (r *Result) Last() *ir.Record {
	if len(r.Trace) == 0 {
		return nil
	}
	return r.Trace[len(r.Trace)-1].Record
}
