package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/expr"
)

// writeScenario writes content to dir/test.yaml and returns the path.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
records: records
record: progress
locale: de
start_time: "2024-03-01T09:15:30Z"
state:
  steps: 750
  name: "Ana"
steps:
  - set_state: { steps: 900.5 }
    expect:
      ranged: { value: 9 }
  - advance: 1m
assertions:
  - type: never_invalid
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "records"), scenario.Records)
	assert.Equal(t, "progress", scenario.Record)
	assert.Len(t, scenario.Steps, 2)
	assert.Equal(t, 900.5, scenario.Steps[0].SetState["steps"])
	assert.Equal(t, "1m", scenario.Steps[1].Advance)

	state, err := convertState(scenario.State)
	require.NoError(t, err)
	assert.Equal(t, map[string]expr.Value{"steps": expr.Float(750), "name": expr.String("Ana")}, state)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: typo
records: records
record: r
steps:
  - advance: 1s
    expects: { kind: EMPTY }
`)
	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing name",
			"records: r\nrecord: x\nsteps: [{advance: 1s}]\n",
			"name is required",
		},
		{
			"missing record",
			"name: n\nrecords: r\nsteps: [{advance: 1s}]\n",
			"record is required",
		},
		{
			"no steps",
			"name: n\nrecords: r\nrecord: x\n",
			"steps list is required",
		},
		{
			"two actions",
			"name: n\nrecords: r\nrecord: x\nsteps: [{advance: 1s, remove_state: [a]}]\n",
			"at most one of set_state",
		},
		{
			"two expectations",
			"name: n\nrecords: r\nrecord: x\nsteps: [{advance: 1s, expect_invalid: true, expect_pending: true}]\n",
			"at most one of expect",
		},
		{
			"bad duration",
			"name: n\nrecords: r\nrecord: x\nsteps: [{advance: soon}]\n",
			"steps[0].advance",
		},
		{
			"null state",
			"name: n\nrecords: r\nrecord: x\nstate: {a: null}\nsteps: [{advance: 1s}]\n",
			"null values are not allowed",
		},
		{
			"bool state",
			"name: n\nrecords: r\nrecord: x\nsteps: [{set_state: {a: true}}]\n",
			"unsupported type bool",
		},
		{
			"unknown sensor",
			"name: n\nrecords: r\nrecord: x\nsensors: [blood_oxygen]\nsteps: [{advance: 1s}]\n",
			"unknown platform key",
		},
		{
			"bad start time",
			"name: n\nrecords: r\nrecord: x\nstart_time: yesterday\nsteps: [{advance: 1s}]\n",
			"start_time",
		},
		{
			"unknown assertion",
			"name: n\nrecords: r\nrecord: x\nsteps: [{advance: 1s}]\nassertions: [{type: sometimes}]\n",
			"unknown assertion type",
		},
		{
			"final without expect",
			"name: n\nrecords: r\nrecord: x\nsteps: [{advance: 1s}]\nassertions: [{type: final}]\n",
			"expect is required for final",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, t.TempDir(), tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByFile(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	var names []string
	for _, sc := range scenarios {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"clock", "goal_progress", "heart_rate", "placeholder_fallback"}, names)
}
