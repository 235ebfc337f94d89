package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
)

// Scenario defines an evaluation test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Records is the CUE records directory. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Records string `yaml:"records"`

	// Record is the name of the record to evaluate.
	Record string `yaml:"record"`

	// KeepDynamic turns on keep-dynamic-values mode.
	KeepDynamic bool `yaml:"keep_dynamic,omitempty"`

	// Locale is a BCP 47 tag for string formatting. Defaults to "en".
	Locale string `yaml:"locale,omitempty"`

	// StartTime is the manual clock's initial time (RFC 3339).
	// Defaults to 2024-01-01T00:00:00Z.
	StartTime string `yaml:"start_time,omitempty"`

	// Sensors lists the platform keys the fake sensor gateway supports.
	// Defaults to every known platform key.
	Sensors []string `yaml:"sensors,omitempty"`

	// State seeds the state store. Values are strings or numbers.
	State map[string]any `yaml:"state,omitempty"`

	// Steps drive the evaluation; each may carry expectations.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step performs at most one action, then checks the settled emission.
type Step struct {
	SetState    map[string]any     `yaml:"set_state,omitempty"`
	RemoveState []string           `yaml:"remove_state,omitempty"`
	Sensor      map[string]float64 `yaml:"sensor,omitempty"`
	Advance     string             `yaml:"advance,omitempty"`

	// Expect is a subset of the expected record's canonical form.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectInvalid expects the invalid sentinel.
	ExpectInvalid bool `yaml:"expect_invalid,omitempty"`

	// ExpectPending expects that nothing has been emitted yet.
	ExpectPending bool `yaml:"expect_pending,omitempty"`
}

// Assertion validates the whole trace.
type Assertion struct {
	// Type is one of emission_count, final, never_invalid.
	Type string `yaml:"type"`

	// Count is the expected number of trace entries (emission_count).
	Count int `yaml:"count,omitempty"`

	// Expect is a subset of the last trace entry's record (final).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEmissionCount = "emission_count"
	AssertFinal         = "final"
	AssertNeverInvalid  = "never_invalid"
)

var defaultStartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Records != "" && !filepath.IsAbs(scenario.Records) {
		scenario.Records = filepath.Join(filepath.Dir(path), scenario.Records)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Records == "" {
		return fmt.Errorf("records directory is required")
	}
	if s.Record == "" {
		return fmt.Errorf("record is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.locale(); err != nil {
		return err
	}
	if _, err := s.startTime(); err != nil {
		return err
	}
	for _, key := range s.Sensors {
		if !slices.Contains(ir.PlatformKeys, key) {
			return fmt.Errorf("sensors: unknown platform key %q", key)
		}
	}
	if _, err := convertState(s.State); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertEmissionCount:
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must be non-negative", i)
			}
		case AssertFinal:
			if len(a.Expect) == 0 {
				return fmt.Errorf("assertions[%d]: expect is required for final", i)
			}
		case AssertNeverInvalid:
		case "":
			return fmt.Errorf("assertions[%d]: type is required", i)
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}

func validateStep(i int, step *Step) error {
	actions := 0
	if step.SetState != nil {
		actions++
		if _, err := convertState(step.SetState); err != nil {
			return fmt.Errorf("steps[%d].set_state: %w", i, err)
		}
	}
	if step.RemoveState != nil {
		actions++
	}
	if step.Sensor != nil {
		actions++
	}
	if step.Advance != "" {
		actions++
		if _, err := time.ParseDuration(step.Advance); err != nil {
			return fmt.Errorf("steps[%d].advance: %w", i, err)
		}
	}
	if actions > 1 {
		return fmt.Errorf("steps[%d]: at most one of set_state, remove_state, sensor, advance", i)
	}

	expects := 0
	if step.Expect != nil {
		expects++
	}
	if step.ExpectInvalid {
		expects++
	}
	if step.ExpectPending {
		expects++
	}
	if expects > 1 {
		return fmt.Errorf("steps[%d]: at most one of expect, expect_invalid, expect_pending", i)
	}
	return nil
}

func (s *Scenario) locale() (language.Tag, error) {
	if s.Locale == "" {
		return language.English, nil
	}
	tag, err := language.Parse(s.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("locale: %w", err)
	}
	return tag, nil
}

func (s *Scenario) startTime() (time.Time, error) {
	if s.StartTime == "" {
		return defaultStartTime, nil
	}
	t, err := time.Parse(time.RFC3339, s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_time: %w", err)
	}
	return t, nil
}

func (s *Scenario) sensorKeys() []string {
	if len(s.Sensors) == 0 {
		return ir.PlatformKeys
	}
	return s.Sensors
}

// convertState converts YAML-parsed values to state values.
// Null values are rejected.
func convertState(values map[string]any) (map[string]expr.Value, error) {
	out := make(map[string]expr.Value, len(values))
	for k, v := range values {
		switch v := v.(type) {
		case string:
			out[k] = expr.String(v)
		case int:
			out[k] = expr.Float(v)
		case int64:
			out[k] = expr.Float(v)
		case float64:
			out[k] = expr.Float(v)
		case nil:
			return nil, fmt.Errorf("key %q: null values are not allowed (use remove_state)", k)
		default:
			return nil, fmt.Errorf("key %q: unsupported type %T", k, v)
		}
	}
	return out, nil
}
