// Package harness provides scenario testing for evaluated records.
//
// The harness loads records from a CUE directory, evaluates one of them
// with the real engine against manual gateways, drives state, sensor and
// time changes step by step, and checks the settled emission after each
// step.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	records: ../records          # CUE directory, relative to the scenario file
//	record: progress             # record to evaluate
//	keep_dynamic: false
//	locale: en
//	start_time: "2024-03-01T09:15:30Z"
//	sensors: [heart_rate_bpm]
//	state:
//	  steps: 750
//	  name: "Ana"
//	steps:
//	  - set_state: { steps: 900 }
//	    expect:
//	      ranged: { value: 9 }
//	  - remove_state: [name]
//	    expect_invalid: true
//	  - sensor: { heart_rate_bpm: 72 }
//	  - advance: 45s
//	    expect_pending: true
//	assertions:
//	  - type: emission_count
//	    count: 3
//	  - type: final
//	    expect: { kind: RANGED_VALUE }
//	  - type: never_invalid
//
// Expectations are subset matches against the record's canonical JSON form:
// only the keys written in the scenario are compared.
//
// # Deterministic Testing
//
// After subscribing and after every step the harness waits until the stream
// has been quiet for a short window, then records the latest emission. Only
// these settled emissions enter the trace, and only when they differ from
// the previous one, so intermediate states conflated by the engine never
// make a trace flaky. Subscription ids come from
// testutil.SequentialIDGenerator and trace sequence numbers count settled
// entries.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/goal_progress.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
