package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dyneval/internal/ir"
)

// TraceSnapshot captures the settled trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string
	Record       string
	Trace        []TraceEntry
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, entry := range s.Trace {
		traceList[i] = map[string]any{
			"step":    entry.Step,
			"seq":     entry.Seq,
			"invalid": entry.Invalid,
			"record":  entry.Record.Canonical(),
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"record":        s.Record,
		"trace":         traceList,
	}
}

// MarshalTrace renders the settled trace of result as canonical JSON.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Record:       scenario.Record,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result (whose Pass reflects expectations and assertions) or
// an error if the scenario could not run. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
