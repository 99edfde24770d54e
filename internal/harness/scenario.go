package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

// Scenario is a scripted conformance run: a stream of frames and control
// inputs for one entity, plus assertions over what the machine did.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Entity names the tracked entity. Defaults to pipeline.DefaultEntity.
	Entity string `yaml:"entity,omitempty"`

	// Rules is a CUE rules directory, relative to the scenario file.
	// Empty means the canonical lifecycle rules.
	Rules string `yaml:"rules,omitempty"`

	// Config patches the starting lifecycle config.
	Config *lifecycle.ConfigPatch `yaml:"config,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted input. Exactly one of Label, ForceIdle,
// ForceCoast, Configure or Patch is set.
//
// A frame step emits Count frames Every ms apart starting at At, or at
// the scenario cursor when At is omitted. The cursor then sits one
// interval past the last frame. Control steps happen at At or the cursor
// and do not move it.
type Step struct {
	Label      string         `yaml:"label,omitempty"`
	Confidence *float64       `yaml:"confidence,omitempty"`
	At         *int64         `yaml:"at,omitempty"`
	Every      int64          `yaml:"every,omitempty"`
	Count      int            `yaml:"count,omitempty"`
	Extras     map[string]any `yaml:"extras,omitempty"`

	ForceIdle  bool                   `yaml:"force_idle,omitempty"`
	ForceCoast bool                   `yaml:"force_coast,omitempty"`
	Configure  *lifecycle.ConfigPatch `yaml:"configure,omitempty"`
	Patch      *RulePatch             `yaml:"patch,omitempty"`
}

// RulePatch retunes one rule mid-scenario.
type RulePatch struct {
	Rule     string   `yaml:"rule"`
	DwellMs  *int64   `yaml:"dwell_ms,omitempty"`
	ConfHigh *float64 `yaml:"conf_high,omitempty"`
	ConfLow  *float64 `yaml:"conf_low,omitempty"`
	Priority *int     `yaml:"priority,omitempty"`
}

// Default frame step shape.
const (
	DefaultEvery      = 10
	DefaultCount      = 1
	DefaultConfidence = 1.0
)

// Assertion checks the finished run.
type Assertion struct {
	// Type is one of final_state, transition_order, transition_count,
	// state_at or dwell.
	Type string `yaml:"type"`

	// State is the expected state (final_state, state_at).
	State string `yaml:"state,omitempty"`

	// Transitions lists "FROM->TO" pairs that must appear in order
	// (transition_order). Other transitions may come between them.
	Transitions []string `yaml:"transitions,omitempty"`

	// Count is the expected number of matching transitions (transition_count).
	Count *int `yaml:"count,omitempty"`

	// Cause, Rule and To filter transitions (transition_count).
	Cause string `yaml:"cause,omitempty"`
	Rule  string `yaml:"rule,omitempty"`
	To    string `yaml:"to,omitempty"`

	// At is the timestamp to inspect (state_at).
	At *int64 `yaml:"at,omitempty"`

	// Ms is the expected accumulated dwell of Rule at the end (dwell).
	Ms *int64 `yaml:"ms,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState      = "final_state"
	AssertTransitionOrder = "transition_order"
	AssertTransitionCount = "transition_count"
	AssertStateAt         = "state_at"
	AssertDwell           = "dwell"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected so typos fail loudly. A relative Rules directory is
// resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	if scenario.Rules != "" {
		if _, err := os.Stat(scenario.Rules); err != nil {
			return nil, fmt.Errorf("invalid scenario: rules directory: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	kinds := 0
	for _, set := range []bool{st.Label != "", st.ForceIdle, st.ForceCoast, st.Configure != nil, st.Patch != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of label, force_idle, force_coast, configure or patch is required", index)
	}

	if st.Label == "" {
		if st.Confidence != nil || st.Every != 0 || st.Count != 0 || st.Extras != nil {
			return fmt.Errorf("steps[%d]: confidence, every, count and extras only apply to frames", index)
		}
	}
	if st.Count < 0 {
		return fmt.Errorf("steps[%d]: count must be non-negative", index)
	}
	if st.Every < 0 {
		return fmt.Errorf("steps[%d]: every must be non-negative", index)
	}
	if st.Patch != nil && st.Patch.Rule == "" {
		return fmt.Errorf("steps[%d].patch: rule is required", index)
	}
	if st.Extras != nil {
		if _, err := ir.ToIRValue(st.Extras); err != nil {
			return fmt.Errorf("steps[%d].extras: %w", index, err)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertStateAt:
		if a.State == "" || a.At == nil {
			return fmt.Errorf("assertions[%d]: state and at are required for state_at", index)
		}
	case AssertTransitionOrder:
		if len(a.Transitions) == 0 {
			return fmt.Errorf("assertions[%d]: transitions list is required for transition_order", index)
		}
		for _, pair := range a.Transitions {
			if _, _, err := parsePair(pair); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTransitionCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for transition_count", index)
		}
	case AssertDwell:
		if a.Rule == "" || a.Ms == nil {
			return fmt.Errorf("assertions[%d]: rule and ms are required for dwell", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.State != "" {
		if _, err := ir.ParseStateID(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	if a.To != "" {
		if _, err := ir.ParseStateID(a.To); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}
